//go:build windows

package threading

import "golang.org/x/sys/windows"

func currentOSThreadID() int64 {
	return int64(windows.GetCurrentThreadId())
}
