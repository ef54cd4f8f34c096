//go:build darwin

package permissions

/*
#cgo LDFLAGS: -framework AVFoundation
#import <AVFoundation/AVFoundation.h>

int microphoneStatus() {
    AVAuthorizationStatus status = [AVCaptureDevice authorizationStatusForMediaType:AVMediaTypeAudio];
    return (int)status;
}

void requestMicrophone() {
    [AVCaptureDevice requestAccessForMediaType:AVMediaTypeAudio completionHandler:^(BOOL granted) {}];
}
*/
import "C"

// Status values of AVAuthorizationStatus.
const (
	StatusNotDetermined = 0
	StatusRestricted    = 1
	StatusDenied        = 2
	StatusAuthorized    = 3
)

// MicrophoneStatus returns the current microphone authorization status.
func MicrophoneStatus() int {
	return int(C.microphoneStatus())
}

// EnsureMicrophone returns nil when capture is authorized. When the user
// has not decided yet it triggers the system prompt and returns
// ErrMicrophoneDenied; the next run picks up the answer.
func EnsureMicrophone() error {
	switch MicrophoneStatus() {
	case StatusAuthorized:
		return nil
	case StatusNotDetermined:
		C.requestMicrophone()
	}
	return ErrMicrophoneDenied
}
