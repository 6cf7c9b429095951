// Command speattest generates certification proofs: it hashes an artifact,
// gates and roots its supporting context, builds a forensic capsule,
// appends it to the hash-chain ledger, and assembles a portable proof
// bundle. See the "attest" and "proof" subcommands below.
//
// Usage:
//
//	speattest attest --t_target <int> --policy <id> [--text TEXT |
//	    --text_file F | --file F | --hash HEX] [--model_id M]
//	    [--artifact_type T] [--sign-key F] [--context F]
//	    [--domain D] [--purpose P] [--watch] --out_dir D
//	speattest proof --capsule F --ledger F
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"spe/internal/bundle"
	"spe/internal/canon"
	"spe/internal/capsule"
	"spe/internal/config"
	"spe/internal/contextset"
	"spe/internal/hasher"
	"spe/internal/ledger"
	"spe/internal/logging"
	"spe/internal/proofinput"
	"spe/internal/signer"
	"spe/internal/watch"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	defer logging.RecoverPanic()
	logging.DefaultCrashHandler().SetVersion(version)
	configureLogging("speattest")

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "attest":
		cmdAttest(os.Args[2:])
	case "proof":
		cmdProof(os.Args[2:])
	case "version":
		fmt.Printf("speattest %s (commit: %s)\n", version, commit)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "speattest: unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

// configureLogging points the default structured logger at component, and
// honors SPE_LOG_LEVEL ("debug", "info", "warn", "error") when set.
func configureLogging(component string) {
	cfg := logging.DefaultConfig()
	cfg.Component = component
	if lvl := os.Getenv("SPE_LOG_LEVEL"); lvl != "" {
		level, err := logging.ParseLevel(lvl)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", component, err)
		} else {
			cfg.Level = level
		}
	}
	l, err := logging.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: configure logging: %v\n", component, err)
		return
	}
	logging.SetDefault(l)
}

func usage() {
	fmt.Fprintln(os.Stderr, `speattest - generate certification proofs

Usage:
  speattest attest --t_target N --policy ID [input flags] --out_dir D
  speattest proof --capsule F --ledger F
  speattest version

Run "speattest attest -h" or "speattest proof -h" for subcommand flags.`)
}

func cmdAttest(args []string) {
	fs := flag.NewFlagSet("attest", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file (default: "+config.ConfigPath()+")")
	tTarget := fs.Int64("t_target", 0, "the certification target boundary (required)")
	policy := fs.String("policy", "", "temporal gate policy: strict or none (default from config, else strict)")
	text := fs.String("text", "", "certify this literal text")
	textFile := fs.String("text_file", "", "certify the contents of this text file")
	filePath := fs.String("file", "", "certify the contents of this (binary) file")
	hashHex := fs.String("hash", "", "certify a precomputed SHA-256 hex digest (hash-only mode)")
	modelID := fs.String("model_id", "unspecified", "identifier of the certifying model")
	prompt := fs.String("prompt", "", "the prompt sent to the model, hashed into hash_prompt")
	artifactType := fs.String("artifact_type", "other", `kind of artifact being certified, e.g. "ai-output", "legal-document"`)
	signKey := fs.String("sign-key", "", "path to an Ed25519 seed or OpenSSH key to sign the proof-input manifest (default from config)")
	contextFile := fs.String("context", "", "path to a JSON array of context items")
	domain := fs.String("domain", "", "free-form domain hint recorded in the proof-input manifest")
	purpose := fs.String("purpose", "", "free-form purpose hint recorded in the proof-input manifest")
	outDir := fs.String("out_dir", "", "directory to write the bundle into (default from config, else \".\")")
	ledgerPath := fs.String("ledger", "", "path to the hash-chain ledger database (default from config)")
	watchFlag := fs.Bool("watch", false, "re-run attest each time --text_file or --file changes")
	debounceMs := fs.Int("watch-debounce-ms", 0, "debounce interval for --watch, in milliseconds (default from config)")
	fs.Parse(args)

	if *tTarget == 0 {
		fmt.Fprintln(os.Stderr, "speattest attest: --t_target is required")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "speattest attest: load config: %v\n", err)
		os.Exit(2)
	}

	effectivePolicy := firstNonEmpty(*policy, cfg.Gate.Policy, "strict")
	effectiveOutDir := firstNonEmpty(*outDir, cfg.Storage.OutputDir, ".")
	effectiveLedgerPath := firstNonEmpty(*ledgerPath, cfg.Storage.LedgerPath, "spe-ledger.sqlite")
	effectiveSignKey := firstNonEmpty(*signKey, cfg.Signing.KeyPath, "")
	effectiveDebounce := *debounceMs
	if effectiveDebounce == 0 {
		effectiveDebounce = cfg.Watch.DebounceMs
	}
	if effectiveDebounce == 0 {
		effectiveDebounce = 300
	}

	run := func() error {
		return runAttest(attestParams{
			tTarget:      *tTarget,
			policy:       effectivePolicy,
			text:         *text,
			textFile:     *textFile,
			filePath:     *filePath,
			hashHex:      *hashHex,
			modelID:      *modelID,
			prompt:       *prompt,
			artifactType: *artifactType,
			signKey:      effectiveSignKey,
			contextFile:  *contextFile,
			domain:       *domain,
			purpose:      *purpose,
			outDir:       effectiveOutDir,
			ledgerPath:   effectiveLedgerPath,
		})
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "speattest attest: %v\n", err)
		os.Exit(1)
	}

	if !*watchFlag {
		return
	}

	watchTarget := *textFile
	if watchTarget == "" {
		watchTarget = *filePath
	}
	if watchTarget == "" {
		fmt.Fprintln(os.Stderr, "speattest attest: --watch requires --text_file or --file")
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fmt.Fprintf(os.Stderr, "watching %s for changes (ctrl-c to stop)...\n", watchTarget)
	err = watch.Run(ctx, watchTarget, effectiveDebounce, func(ev watch.Event) {
		fmt.Fprintf(os.Stderr, "\n%s changed, re-attesting...\n", ev.Path)
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "speattest attest: %v\n", err)
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "speattest attest: watch: %v\n", err)
		os.Exit(1)
	}
}

// firstNonEmpty returns the first non-empty string among vals, in order:
// the explicit flag value, the config-derived value, then the hardcoded
// fallback. This implements the flag-beats-config-beats-default layering.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

type attestParams struct {
	tTarget      int64
	policy       string
	text         string
	textFile     string
	filePath     string
	hashHex      string
	modelID      string
	prompt       string
	artifactType string
	signKey      string
	contextFile  string
	domain       string
	purpose      string
	outDir       string
	ledgerPath   string
}

func runAttest(p attestParams) error {
	reqID := logging.Default().NewRequestID()
	ctx := logging.ContextWithRequestID(context.Background(), reqID)
	logging.InfoContext(ctx, "attest starting", "t_target", p.tTarget, "policy", p.policy, "model_id", p.modelID)

	outputHash, mode, err := resolveOutputHash(p)
	if err != nil {
		logging.ErrorContext(ctx, "attest failed", "stage", "resolve_output_hash", "err", err)
		return err
	}

	items, err := loadContextItems(p.contextFile)
	if err != nil {
		logging.ErrorContext(ctx, "attest failed", "stage", "load_context", "err", err)
		return err
	}
	logging.Debug("context items loaded", "count", len(items))

	gated := contextset.ApplyGate(items, p.tTarget, p.policy)
	root, err := contextset.RootHex(gated.Items)
	if err != nil {
		logging.ErrorContext(ctx, "attest failed", "stage", "context_root", "err", err)
		return fmt.Errorf("compute context merkle root: %w", err)
	}

	tRun := time.Now().Unix()
	c := capsule.Capsule{
		TRun:              tRun,
		TTarget:           p.tTarget,
		GatePolicyID:      gated.PolicyID,
		ModelID:           p.modelID,
		HashPrompt:        hasher.SumHex([]byte(p.prompt)),
		OutputHash:        outputHash,
		ContextMerkleRoot: root,
		Mode:              mode,
		ArtifactType:      p.artifactType,
	}
	if err := c.Validate(); err != nil {
		logging.ErrorContext(ctx, "attest failed", "stage", "validate_capsule", "err", err)
		return fmt.Errorf("build capsule: %w", err)
	}

	capsuleHash, err := c.Hash()
	if err != nil {
		return fmt.Errorf("hash capsule: %w", err)
	}

	l, err := ledger.Open(p.ledgerPath)
	if err != nil {
		logging.ErrorContext(ctx, "attest failed", "stage", "open_ledger", "err", err)
		return fmt.Errorf("open ledger: %w", err)
	}
	defer l.Close()

	entry, err := l.Append(capsuleHash, tRun)
	if err != nil {
		logging.ErrorContext(ctx, "attest failed", "stage", "append_ledger", "err", err)
		return fmt.Errorf("append to ledger: %w", err)
	}
	_ = logging.DefaultAuditLogger().LogLedgerAppended(ctx, entry.EntryHash, entry.ID)

	manifestFields := map[string]any{
		"model_id":       p.modelID,
		"t_run":          tRun,
		"t_target":       p.tTarget,
		"gate_policy_id": gated.PolicyID,
		"capsule_hash":   capsuleHash,
	}
	if p.domain != "" || p.purpose != "" {
		manifestFields["context"] = map[string]any{
			"domain":  p.domain,
			"purpose": p.purpose,
		}
	}
	manifest := proofinput.Manifest{Fields: manifestFields}
	if p.signKey != "" {
		seed, err := signer.LoadSeed(p.signKey)
		if err != nil {
			logging.ErrorContext(ctx, "attest failed", "stage", "load_signing_key", "err", err)
			return fmt.Errorf("load signing key: %w", err)
		}
		manifest, err = manifest.Sign(seed)
		if err != nil {
			logging.ErrorContext(ctx, "attest failed", "stage", "sign_manifest", "err", err)
			return fmt.Errorf("sign proof input: %w", err)
		}
	} else {
		logging.Warn("proof-input manifest will be unsigned", "reason", "no --sign-key provided")
	}

	if err := os.MkdirAll(p.outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	bundlePath := filepath.Join(p.outDir, fmt.Sprintf("spe-bundle-%d.zip", tRun))
	if err := bundle.Assemble(bundlePath, c, p.ledgerPath, manifest); err != nil {
		logging.ErrorContext(ctx, "attest failed", "stage", "assemble_bundle", "err", err)
		return fmt.Errorf("assemble bundle: %w", err)
	}
	_ = logging.DefaultAuditLogger().LogProofGenerated(ctx, capsuleHash, map[string]interface{}{
		"bundle": bundlePath,
	})
	_ = logging.DefaultAuditLogger().LogBundleAssembled(ctx, bundlePath)
	logging.Default().WithComponent("bundle").InfoContext(ctx, "bundle assembled", "path", bundlePath, "capsule_hash", capsuleHash)

	fmt.Printf("capsule_hash: %s\n", capsuleHash)
	fmt.Printf("ledger_entry: %d\n", entry.ID)
	fmt.Printf("bundle: %s\n", bundlePath)
	return nil
}

func resolveOutputHash(p attestParams) (hash string, mode string, err error) {
	switch {
	case p.hashHex != "":
		if !isHexDigest(p.hashHex) {
			return "", "", fmt.Errorf("--hash must be 64 lower-case hex characters, got %q", p.hashHex)
		}
		return p.hashHex, "hash-only", nil
	case p.filePath != "":
		h, err := hasher.FileHex(p.filePath)
		return h, "file", err
	case p.textFile != "":
		data, err := os.ReadFile(p.textFile)
		if err != nil {
			return "", "", fmt.Errorf("read text_file: %w", err)
		}
		return hasher.SumHex(data), "text", nil
	case p.text != "":
		return hasher.SumHex([]byte(p.text)), "text", nil
	default:
		return "", "", fmt.Errorf("one of --text, --text_file, --file, or --hash is required")
	}
}

// isHexDigest reports whether s is a 64-character lower-case hex SHA-256
// digest, the shape spec §7 calls malformed hex otherwise.
func isHexDigest(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			return false
		}
	}
	return true
}

func loadContextItems(path string) ([]contextset.Item, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read context file: %w", err)
	}
	var items []contextset.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse context file: %w", err)
	}
	for _, it := range items {
		if err := it.Validate(); err != nil {
			return nil, fmt.Errorf("invalid context item %q: %w", it.DocID, err)
		}
	}
	return items, nil
}

func cmdProof(args []string) {
	fs := flag.NewFlagSet("proof", flag.ExitOnError)
	capsulePath := fs.String("capsule", "", "path to a forensic_capsule.json file (required)")
	ledgerPath := fs.String("ledger", "", "path to the ledger database (required)")
	fs.Parse(args)

	if *capsulePath == "" || *ledgerPath == "" {
		fmt.Fprintln(os.Stderr, "speattest proof: --capsule and --ledger are required")
		os.Exit(2)
	}

	data, err := os.ReadFile(*capsulePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "speattest proof: read capsule: %v\n", err)
		os.Exit(1)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		fmt.Fprintf(os.Stderr, "speattest proof: parse capsule: %v\n", err)
		os.Exit(1)
	}
	canonical, err := canon.Bytes(fields)
	if err != nil {
		fmt.Fprintf(os.Stderr, "speattest proof: canonicalize capsule: %v\n", err)
		os.Exit(1)
	}
	capsuleHash := hasher.SumHex(canonical)

	l, err := ledger.Open(*ledgerPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "speattest proof: open ledger: %v\n", err)
		os.Exit(1)
	}
	defer l.Close()

	entries, err := l.All()
	if err != nil {
		fmt.Fprintf(os.Stderr, "speattest proof: read ledger: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("=== Proof ===")
	fmt.Printf("capsule_hash:        %s\n", capsuleHash)
	fmt.Printf("t_run:               %v\n", fields["t_run"])
	fmt.Printf("t_target:            %v\n", fields["t_target"])
	fmt.Printf("gate_policy_id:      %v\n", fields["gate_policy_id"])
	fmt.Printf("model_id:            %v\n", fields["model_id"])
	fmt.Printf("context_merkle_root: %v\n", fields["context_merkle_root"])
	fmt.Printf("ledger_entries:      %d\n", len(entries))
	fmt.Printf("ledger_chain_valid:  %t\n", ledger.Verify(entries))
}
