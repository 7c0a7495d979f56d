package main

import (
	"fmt"
	"os"

	"github.com/zenphony/notifier/internal/provider"
)

// vapidgen prints a fresh VAPID key pair in .env form.
func main() {
	pub, priv, err := provider.GenerateVAPIDKeys()
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate keys: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("VAPID_PUBLIC_KEY=%s\n", pub)
	fmt.Printf("VAPID_PRIVATE_KEY=%s\n", priv)
}
