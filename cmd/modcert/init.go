package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/spf13/cobra"

	"github.com/iykyk-syn/modcert/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.ExpandHome(configPath)
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config %s already exists", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}

		if err := config.Default().Save(path); err != nil {
			return err
		}
		fmt.Println("Config written to", path)
		return nil
	},
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Create the node identity and print it as a moderator set entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		p2pKey, signer, err := getIdentity(cfg.KeyPath)
		if err != nil {
			return err
		}
		id, err := peer.IDFromPrivateKey(p2pKey)
		if err != nil {
			return err
		}

		addr := "<listen-multiaddr>"
		if len(cfg.ListenAddrs) > 0 {
			addr = cfg.ListenAddrs[0]
		}
		fmt.Println("[[moderators]]")
		fmt.Printf("public_key = %q\n", hex.EncodeToString(signer.ID()))
		fmt.Printf("addr = %q\n", addr+"/p2p/"+id.String())
		return nil
	},
}
