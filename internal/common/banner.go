package common

import (
	"fmt"

	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner followed by the listen address and store
func PrintBanner(config *Config) {
	banner.PrintSimple("Covera", GetVersion())
	fmt.Printf("  listening on http://%s:%d  store=%s  classifier=%s\n\n",
		config.Server.Host, config.Server.Port, config.Storage.Type, config.Classifier.Provider)
}
