package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/radiomesh/radiomesh/internal/nodestore"
	"github.com/radiomesh/radiomesh/pkg/keys"
)

var keygenPath string

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Provision a device identity keypair in a node store",
	RunE:  runKeygen,
}

func init() {
	keygenCmd.Flags().StringVar(&keygenPath, "store", "radiomesh-node.db", "path to the sqlite node store to provision")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	ns, err := nodestore.Open(keygenPath)
	if err != nil {
		return fmt.Errorf("open node store: %w", err)
	}
	defer ns.Close()

	km := keys.NewKeyManager(ns)
	if _, err := km.DevicePrivate(); err == nil {
		return fmt.Errorf("node store at %s already has a device identity keypair", keygenPath)
	}

	pub, err := km.GenerateAndStoreKeypair()
	if err != nil {
		return fmt.Errorf("generate keypair: %w", err)
	}
	fmt.Printf("device public key: %x\n", pub)
	return nil
}
