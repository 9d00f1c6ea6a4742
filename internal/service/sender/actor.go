package sender

import (
	"fmt"
	"os"
	"os/user"
)

// Metadata keys stamped by DetectActor.
const (
	HostnameKey = "hostname"
	UsernameKey = "username"
)

// DetectActor returns the host and user running the command, for audit metadata.
func DetectActor() (map[string]any, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("hostname: %w", err)
	}

	currentUser, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}

	return map[string]any{
		HostnameKey: hostname,
		UsernameKey: currentUser.Username,
	}, nil
}
