// nolint: gochecknoglobals
package idgenerator

import gonanoid "github.com/matoous/go-nanoid/v2"

const (
	CycleIDLength         = 12
	EtcdNamespaceIDLength = 10
)

// alphabet used in ID generation.
var alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// CycleID identifies one orchestrator cycle in logs and status messages.
func CycleID() string {
	return gonanoid.MustGenerate(alphabet, CycleIDLength)
}

func EtcdNamespaceForTest() string {
	return gonanoid.MustGenerate(alphabet, EtcdNamespaceIDLength)
}
