package trafficctl

import (
	"os/exec"
	"runtime"
)

// Supported reports whether this host can plausibly run the traffic
// controller: Linux, with tc, cgcreate and cgclassify resolvable on
// PATH. Callers should surface ControlPrerequisiteMissing when false
// rather than attempting construction.
func Supported() bool {
	if runtime.GOOS != "linux" {
		return false
	}
	for _, bin := range []string{"tc", "cgcreate", "cgclassify"} {
		if _, err := exec.LookPath(bin); err != nil {
			return false
		}
	}
	return true
}
