// Command ledgerctl runs operator tasks against the ledger database:
// migrations, reconciliation, outbox relaying and SYSTEM wallet provisioning.
package main

import (
	"fmt"
	"os"

	"github.com/congo-pay/walletledger/internal/config"
	"github.com/congo-pay/walletledger/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.NewWithWriter(os.Stderr, cfg.LogLevel)

	if err := newRootCommand(newRuntime(cfg, logger)).Execute(); err != nil {
		os.Exit(1)
	}
}
