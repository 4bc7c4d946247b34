package cmd

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var hashpwLegacy bool

// hashpwCmd prints the digest to put in ADMIN_PASSWORD_HASH. New
// deployments should use the default bcrypt output; --legacy emits the
// unsalted SHA-256 form older dashboards were provisioned with.
var hashpwCmd = &cobra.Command{
	Use:   "hashpw <password>",
	Short: "Hash an admin password for ADMIN_PASSWORD_HASH",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		password := args[0]
		if hashpwLegacy {
			sum := sha256.Sum256([]byte(password))
			fmt.Println(hex.EncodeToString(sum[:]))
			return
		}
		digest, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			fmt.Fprintf(os.Stderr, "hash failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(digest))
	},
}

func init() {
	hashpwCmd.Flags().BoolVar(&hashpwLegacy, "legacy", false, "emit the legacy unsalted SHA-256 digest")
}
