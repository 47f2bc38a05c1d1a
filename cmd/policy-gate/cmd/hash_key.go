package cmd

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sentinelpolicy/policygate/internal/adapter/outbound/sql"
	"github.com/sentinelpolicy/policygate/internal/config"
	"github.com/sentinelpolicy/policygate/internal/domain/auth"
)

var (
	hashKeyEnvID  string
	hashKeyAlgo   string
	hashKeyInsert bool
)

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key",
	Short: "Generate a new API key and print (or insert) its ApiKey row",
	Long: `API keys are never stored in raw form, only their prefix and hash.
This command
generates a new high-entropy secret, prints the secret once (it cannot be
recovered later) and the row an operator would insert, and optionally
inserts it directly into the configured database with --insert.

Example:
  policy-gate hash-key --env env_prod
  policy-gate hash-key --env env_prod --insert`,
	RunE: runHashKey,
}

func init() {
	hashKeyCmd.Flags().StringVar(&hashKeyEnvID, "env", "", "environment id the key belongs to (required)")
	hashKeyCmd.Flags().StringVar(&hashKeyAlgo, "algo", "sha256", "hash algorithm: sha256 or argon2id")
	hashKeyCmd.Flags().BoolVar(&hashKeyInsert, "insert", false, "insert the generated row into the configured database")
	_ = hashKeyCmd.MarkFlagRequired("env")
	rootCmd.AddCommand(hashKeyCmd)
}

func runHashKey(cmd *cobra.Command, args []string) error {
	if hashKeyAlgo != "sha256" && hashKeyAlgo != "argon2id" {
		return fmt.Errorf("--algo must be sha256 or argon2id, got %q", hashKeyAlgo)
	}

	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	prefix, secret, err := generateAPIKey(cfg.Decision.APIKeyPrefixLength)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	var hash string
	switch hashKeyAlgo {
	case "sha256":
		sum := sha256.Sum256([]byte(secret))
		hash = hex.EncodeToString(sum[:])
	case "argon2id":
		hash, err = auth.HashArgon2id(secret)
		if err != nil {
			return fmt.Errorf("hash key: %w", err)
		}
	}

	key := &auth.ApiKey{
		ID:        uuid.New().String(),
		EnvID:     hashKeyEnvID,
		KeyPrefix: prefix,
		KeyHash:   hash,
		HashAlgo:  hashKeyAlgo,
	}

	fmt.Printf("secret (save this now, it cannot be recovered):\n  %s\n\n", secret)
	fmt.Printf("api_keys row:\n")
	fmt.Printf("  id:        %s\n", key.ID)
	fmt.Printf("  env_id:    %s\n", key.EnvID)
	fmt.Printf("  key_prefix: %s\n", key.KeyPrefix)
	fmt.Printf("  key_hash:  %s\n", key.KeyHash)
	fmt.Printf("  hash_algo: %s\n", key.HashAlgo)

	if !hashKeyInsert {
		return nil
	}

	db, err := sql.Open(cfg.Store.DSN, cfg.Store.MaxOpenConns)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close() //nolint:errcheck

	store := sql.NewAuthStore(db)
	if err := store.InsertKey(cmd.Context(), key); err != nil {
		return fmt.Errorf("insert key: %w", err)
	}
	fmt.Println("\ninserted.")
	return nil
}

// generateAPIKey returns a printable prefix of prefixLength characters and
// a high-entropy secret beginning with that prefix: prefix || entropy as
// one opaque presented string, so the prefix stays recoverable for the
// indexed lookup without ever storing the secret itself.
func generateAPIKey(prefixLength int) (prefix, secret string, err error) {
	if prefixLength <= 0 {
		prefixLength = 8
	}

	prefixBytes := make([]byte, prefixLength)
	if _, err := rand.Read(prefixBytes); err != nil {
		return "", "", err
	}
	prefix = base64.RawURLEncoding.EncodeToString(prefixBytes)[:prefixLength]

	entropy := make([]byte, 32)
	if _, err := rand.Read(entropy); err != nil {
		return "", "", err
	}
	secret = prefix + base64.RawURLEncoding.EncodeToString(entropy)

	return prefix, secret, nil
}
