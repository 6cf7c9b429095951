// Command speverify independently checks a proof bundle or a loose
// capsule/ledger pair against the verdict surface defined in spec §6:
// LEDGER, CAPSULE_BINDING, PROOF_INPUT_HASH, SIGNATURE, ORIGIN_SPE, and
// OBJECT (only emitted when an original artifact is supplied).
//
// Usage:
//
//	speverify verify --bundle F | --capsule F --ledger F
//	    [--file F] [--proof-input F] [--format text|json]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"spe/internal/bundle"
	"spe/internal/config"
	"spe/internal/logging"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	defer logging.RecoverPanic()
	logging.DefaultCrashHandler().SetVersion(version)
	configureLogging("speverify")

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "verify":
		cmdVerify(os.Args[2:])
	case "version":
		fmt.Printf("speverify %s (commit: %s)\n", version, commit)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "speverify: unknown command %q\n\n", os.Args[1])
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
	fmt.Fprintln(os.Stderr, `speverify - verify certification proof bundles

Usage:
  speverify verify --bundle F [--file F] [--format text|json]
  speverify verify --capsule F --ledger F [--file F] [--format text|json]
  speverify version

Run "speverify verify -h" for all flags.`)
}

func cmdVerify(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file (default: "+config.ConfigPath()+")")
	bundlePath := fs.String("bundle", "", "path to a bundle ZIP (mutually exclusive with --capsule/--ledger)")
	capsulePath := fs.String("capsule", "", "path to an extracted forensic_capsule.json")
	ledgerPath := fs.String("ledger", "", "path to an extracted ledger.sqlite")
	proofInputPath := fs.String("proof-input", "", "path to an extracted proof_input.json (ignored when --bundle is set)")
	artifactPath := fs.String("file", "", "path to the original artifact, to compare against output_hash")
	wellKnownKeyPath := fs.String("well-known-key", "", "path to a Base64 Ed25519 public key to resolve ORIGIN_SPE (default from config)")
	format := fs.String("format", "text", "output format: text or json")
	fs.Parse(args)

	reqID := logging.Default().NewRequestID()
	ctx := logging.ContextWithRequestID(context.Background(), reqID)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "speverify verify: load config: %v\n", err)
		os.Exit(2)
	}

	effectiveLedgerPath := *ledgerPath
	if effectiveLedgerPath == "" {
		effectiveLedgerPath = cfg.Storage.LedgerPath
	}

	if *bundlePath == "" && (*capsulePath == "" || effectiveLedgerPath == "") {
		fmt.Fprintln(os.Stderr, "speverify verify: supply --bundle, or both --capsule and --ledger")
		os.Exit(2)
	}

	effectiveKeyPath := *wellKnownKeyPath
	if effectiveKeyPath == "" {
		effectiveKeyPath = cfg.Signing.WellKnownPublicKeyPath
	}

	opts := bundle.VerifyOptions{OriginalArtifactPath: *artifactPath}
	if effectiveKeyPath != "" {
		key, err := os.ReadFile(effectiveKeyPath)
		if err != nil {
			logging.ErrorContext(ctx, "verify failed", "stage", "read_well_known_key", "err", err)
			fmt.Fprintf(os.Stderr, "speverify verify: read well-known key: %v\n", err)
			os.Exit(1)
		}
		opts.WellKnownPublicKey = strings.TrimSpace(string(key))
	} else {
		logging.Warn("no well-known key configured, ORIGIN_SPE will stay UNKNOWN")
	}

	logging.InfoContext(ctx, "verify starting", "bundle", *bundlePath, "capsule", *capsulePath, "ledger", effectiveLedgerPath)

	var report bundle.Report
	if *bundlePath != "" {
		report, err = bundle.VerifyBundle(*bundlePath, opts)
	} else {
		dir, derr := prepareLooseDir(*capsulePath, effectiveLedgerPath, *proofInputPath)
		if derr != nil {
			logging.ErrorContext(ctx, "verify failed", "stage", "prepare_loose_dir", "err", derr)
			fmt.Fprintf(os.Stderr, "speverify verify: %v\n", derr)
			os.Exit(1)
		}
		defer os.RemoveAll(dir)
		report, err = bundle.VerifyExtracted(dir, opts)
	}
	if err != nil {
		logging.ErrorContext(ctx, "verify failed", "stage", "verify_report", "err", err)
		fmt.Fprintf(os.Stderr, "speverify verify: %v\n", err)
		os.Exit(1)
	}

	valid := emitReport(report, *format)
	_ = logging.DefaultAuditLogger().LogBundleVerified(ctx, *bundlePath, valid, map[string]interface{}{
		"ledger":          string(report.Ledger),
		"capsule_binding": string(report.CapsuleBinding),
	})
	_ = logging.DefaultAuditLogger().LogSignatureCheck(ctx, string(report.Signature))
	logging.Default().WithComponent("verify").InfoContext(ctx, "verify finished", "valid", valid, "signature", string(report.Signature))

	if !valid {
		os.Exit(1)
	}
}

// prepareLooseDir stages a loose capsule/ledger/proof-input triple into a
// temp directory under the fixed member names VerifyExtracted expects.
func prepareLooseDir(capsulePath, ledgerPath, proofInputPath string) (string, error) {
	dir, err := os.MkdirTemp("", "spe-verify-loose-*")
	if err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}

	if err := copyInto(capsulePath, dir, bundle.CapsuleMember); err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	if err := copyInto(ledgerPath, dir, bundle.LedgerMember); err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	if proofInputPath != "" {
		if err := copyInto(proofInputPath, dir, bundle.ProofInputMember); err != nil {
			os.RemoveAll(dir)
			return "", err
		}
	} else {
		// An absent manifest verifies as an empty, unsigned one.
		if err := os.WriteFile(dir+"/"+bundle.ProofInputMember, []byte("{}"), 0o600); err != nil {
			os.RemoveAll(dir)
			return "", err
		}
	}
	return dir, nil
}

func copyInto(srcPath, destDir, memberName string) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", srcPath, err)
	}
	return os.WriteFile(destDir+"/"+memberName, data, 0o600)
}

// emitReport writes the verdict surface in the fixed order from spec §6
// and returns whether every applicable verdict is VALID/MATCH (with
// SIGNATURE: UNKNOWN tolerated).
func emitReport(r bundle.Report, format string) bool {
	if format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(reportToMap(r))
	} else {
		fmt.Printf("LEDGER: %s\n", r.Ledger)
		fmt.Printf("CAPSULE_BINDING: %s\n", r.CapsuleBinding)
		fmt.Printf("PROOF_INPUT_HASH: %s\n", r.ProofInputHash)
		fmt.Printf("SIGNATURE: %s\n", r.Signature)
		fmt.Printf("ORIGIN_SPE: %s\n", r.OriginSPE)
		if r.HasObjectResult {
			fmt.Printf("OBJECT: %s\n", r.Object)
		}
	}

	ok := r.Ledger == bundle.StatusValid &&
		r.CapsuleBinding == bundle.StatusValid &&
		(r.Signature == bundle.StatusValid || r.Signature == bundle.StatusUnknown)
	if r.HasObjectResult {
		ok = ok && r.Object == bundle.StatusMatch
	}
	return ok
}

func reportToMap(r bundle.Report) map[string]any {
	m := map[string]any{
		"LEDGER":           string(r.Ledger),
		"CAPSULE_BINDING":  string(r.CapsuleBinding),
		"PROOF_INPUT_HASH": r.ProofInputHash,
		"SIGNATURE":        string(r.Signature),
		"ORIGIN_SPE":       string(r.OriginSPE),
	}
	if r.HasObjectResult {
		m["OBJECT"] = string(r.Object)
	}
	return m
}
