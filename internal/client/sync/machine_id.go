package sync

import (
	"crypto/md5"
	"encoding/hex"
	"os"

	"github.com/denisbrodbeck/machineid"
)

const machineIDLength = 8

// MachineID returns a short stable id for this host. It goes into conflict
// copy names so copies from different machines never collide.
func MachineID() string {
	if id, err := machineid.ProtectedID("syncmirror"); err == nil && len(id) >= machineIDLength {
		return id[:machineIDLength]
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	sum := md5.Sum([]byte(hostname))
	return hex.EncodeToString(sum[:])[:machineIDLength]
}
