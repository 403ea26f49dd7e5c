//go:build !linux && !windows

package threading

func currentOSThreadID() int64 {
	return 0
}
