package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"escrowd/config"
	"escrowd/crypto"
	"escrowd/integrations/exports"
	"escrowd/integrations/journal"
)

// runInit writes the default configuration to --config.
func runInit(args []string, stdout io.Writer) error {
	var configPath string
	var force bool
	fs := newFlagSet("init", &configPath)
	fs.BoolVar(&force, "force", false, "overwrite an existing file")
	if ok, err := parseFlags(fs, args, stdout); !ok {
		return err
	}
	if strings.TrimSpace(configPath) == "" {
		return errors.New("--config is required")
	}
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
	}
	if err := config.Write(configPath, config.Default()); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s; set Escrow.Owner and API.JWTSecret before serving\n", configPath)
	return nil
}

// runToken mints an API token for a caller address using the configured
// secret. It is meant for development and operator tooling.
func runToken(args []string, stdout io.Writer) error {
	var configPath, subject string
	var ttl time.Duration
	fs := newFlagSet("token", &configPath)
	fs.StringVar(&subject, "subject", "", "caller address (bech32 or hex)")
	fs.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	if ok, err := parseFlags(fs, args, stdout); !ok {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	caller, err := crypto.ParseAddress(subject)
	if err != nil {
		return fmt.Errorf("subject: %w", err)
	}
	token, err := mintToken(cfg, caller, ttl, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, token)
	return nil
}

func mintToken(cfg *config.Config, caller crypto.Address, ttl time.Duration, now time.Time) (string, error) {
	if caller.IsZero() {
		return "", errors.New("subject must not be the zero address")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}
	claims := jwt.MapClaims{
		"sub": caller.String(),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if cfg.API.JWTIssuer != "" {
		claims["iss"] = cfg.API.JWTIssuer
	}
	if cfg.API.JWTAudience != "" {
		claims["aud"] = cfg.API.JWTAudience
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(strings.TrimSpace(cfg.API.JWTSecret)))
}

// runKeygen creates an operator key, stores it in an encrypted keystore file
// and prints the controlled address for use as Escrow.Owner. The passphrase
// is read from ESCROWD_KEYSTORE_PASSPHRASE or --passphrase-file.
func runKeygen(args []string, stdout io.Writer) error {
	var configPath, outPath, passphraseFile string
	var light bool
	fs := newFlagSet("keygen", &configPath)
	fs.StringVarP(&outPath, "out", "o", "", "keystore file to create")
	fs.StringVar(&passphraseFile, "passphrase-file", "", "file holding the keystore passphrase")
	fs.BoolVar(&light, "light", false, "use cheap scrypt parameters (development only)")
	if ok, err := parseFlags(fs, args, stdout); !ok {
		return err
	}
	if strings.TrimSpace(outPath) == "" {
		return errors.New("--out is required")
	}
	if _, err := os.Stat(outPath); err == nil {
		return fmt.Errorf("%s already exists", outPath)
	}
	passphrase, err := readPassphrase(passphraseFile)
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	params := crypto.StandardKeystore
	if light {
		params = crypto.LightKeystore
	}
	if err := crypto.SaveKeystore(outPath, key, passphrase, params); err != nil {
		return err
	}
	addr, err := key.Address()
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, addr.String())
	return nil
}

func readPassphrase(path string) (string, error) {
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read passphrase: %w", err)
		}
		return strings.TrimRight(string(raw), "\r\n"), nil
	}
	if env := os.Getenv("ESCROWD_KEYSTORE_PASSPHRASE"); env != "" {
		return env, nil
	}
	return "", errors.New("set ESCROWD_KEYSTORE_PASSPHRASE or --passphrase-file")
}

// runExport dumps the event journal as CSV or JSON Lines. The checksum of the
// payload is printed to stderr.
func runExport(args []string, stdout, stderr io.Writer) error {
	var configPath, format, escrowID, eventType, outPath string
	var limit int
	fs := newFlagSet("export", &configPath)
	fs.StringVar(&format, "format", "jsonl", "output format: csv or jsonl")
	fs.StringVar(&escrowID, "escrow", "", "only export events of this escrow id")
	fs.StringVar(&eventType, "type", "", "only export events of this type")
	fs.IntVar(&limit, "limit", 0, "maximum number of events (0 = all)")
	fs.StringVarP(&outPath, "out", "o", "", "write to file instead of stdout")
	if ok, err := parseFlags(fs, args, stderr); !ok {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Journal.Driver) == "" {
		return errors.New("journal is not configured")
	}
	j, err := journal.Open(cfg.Journal.Driver, cfg.Journal.DSN)
	if err != nil {
		return err
	}
	defer j.Close()

	entries, err := j.List(context.Background(), journal.Filter{EscrowID: escrowID, Type: eventType, Limit: limit})
	if err != nil {
		return err
	}
	var data []byte
	var checksum string
	switch strings.ToLower(format) {
	case "csv":
		data, checksum, err = exports.JournalCSV(entries)
	case "jsonl":
		data, checksum, err = exports.JournalJSONL(entries)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		return err
	}
	if outPath != "" {
		if err := os.WriteFile(outPath, data, 0o600); err != nil {
			return err
		}
	} else if _, err := stdout.Write(data); err != nil {
		return err
	}
	fmt.Fprintf(stderr, "exported %d events, sha256 %s\n", len(entries), checksum)
	return nil
}
