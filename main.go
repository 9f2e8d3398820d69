package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"
	"strings"

	"tokentrackr/pkg/actions"
	"tokentrackr/pkg/config"
	"tokentrackr/pkg/models"
	"tokentrackr/pkg/reconcile"
	"tokentrackr/pkg/server"
	"tokentrackr/pkg/session"
	"tokentrackr/pkg/tui"
	"tokentrackr/pkg/watcher"

	"github.com/ethereum/go-ethereum/ethclient"
)

// Version should be set during build
var Version = "dev"

func main() {
	testFlag := flag.Bool("t", false, "Test configuration and exit")
	testLongFlag := flag.Bool("test", false, "Test configuration and exit")
	jsonFlag := flag.Bool("json", false, "Output test results as JSON")
	dryRunFlag := flag.Bool("dry-run", false, "Perform a trial run with no changes made")
	configFlag := flag.String("config", "", "Path to configuration file")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	serverFlag := flag.Bool("server", false, "Run in headless server mode")
	portFlag := flag.Int("port", 8080, "Port for API server")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("tokentrackr version %s\n", Version)
		os.Exit(0)
	}

	cfgInput := *configFlag
	if cfgInput == "" && len(flag.Args()) > 0 {
		cfgInput = flag.Args()[0]
	}
	path, err := config.GetConfigPath(cfgInput)
	if err != nil {
		fmt.Printf("Error determining config path: %v\n", err)
		os.Exit(1)
	}

	st, err := config.LoadFromFile(path)
	if err != nil {
		fmt.Printf("Error loading config from %s: %v\n", path, err)
		os.Exit(1)
	}

	if *testFlag || *testLongFlag {
		os.Exit(testConfig(st, path, *jsonFlag, *dryRunFlag))
	}

	store := config.NewStore(path, st)
	sessions := session.NewManager(store)
	reconciler := reconcile.NewReconciler(sessions, store)
	coordinator := actions.NewCoordinator(sessions)

	if st.Authenticated || st.SavedAddress != "" {
		if sess, err := sessions.Resume(context.Background()); err == nil && sess.Connected() {
			fmt.Printf("Resumed %s session for %s\n", sess.Mode, sess.Address)
		}
	}

	w := watcher.NewWatcher(sessions, reconciler, store.State())
	go w.Start(context.Background())

	srv := server.NewServer(sessions, reconciler, w)
	go func() {
		if err := srv.Start(*portFlag); err != nil {
			fmt.Printf("Server error: %v\n", err)
		}
	}()

	if *serverFlag {
		fmt.Printf("Running in server mode on port %d...\n", *portFlag)
		select {} // Keep alive
	}

	tui.Start(sessions, reconciler, coordinator, w, st.Chain, Version)
}

// testConfig validates the structure of the configuration and probes the RPC
// endpoint, filling in a missing chain ID unless dry-run is set. The exit code
// is 0 only when the structure is valid and the RPC answers.
func testConfig(st config.State, path string, asJSON, dryRun bool) int {
	report := models.TestReport{
		ConfigPath:     path,
		ValidStructure: true,
		DryRun:         dryRun,
		ChainName:      st.Chain.Name,
		ConfigChainID:  st.Chain.ChainID,
	}

	if !asJSON {
		fmt.Printf("Testing configuration at: %s\n", path)
	}

	if strings.TrimSpace(st.Chain.Name) == "" {
		report.ValidStructure = false
		report.StructureErrors = append(report.StructureErrors, "Chain has no name.")
	}
	if strings.TrimSpace(st.Chain.RPCURL) == "" {
		report.ValidStructure = false
		report.StructureErrors = append(report.StructureErrors, "Chain has no RPC URL.")
	}
	if !report.ValidStructure {
		if asJSON {
			emitReport(report)
		} else {
			for _, msg := range report.StructureErrors {
				fmt.Printf("Error: %s\n", msg)
			}
		}
		return 1
	}

	report.RPC = models.RPCResult{URL: st.Chain.RPCURL}
	if !asJSON {
		fmt.Printf("Testing chain: %s\n  RPC: %s ... ", st.Chain.Name, st.Chain.RPCURL)
	}

	client, err := ethclient.Dial(st.Chain.RPCURL)
	if err != nil {
		report.RPC.Status = "error"
		report.RPC.Error = err.Error()
		if asJSON {
			emitReport(report)
		} else {
			fmt.Printf("Failed: %v\n", err)
		}
		return 1
	}
	defer client.Close()

	id, err := client.ChainID(context.Background())
	if err != nil {
		report.RPC.Status = "error"
		report.RPC.Error = fmt.Sprintf("Failed to get ChainID: %v", err)
		if asJSON {
			emitReport(report)
		} else {
			fmt.Printf("Failed to get ChainID: %v\n", err)
		}
		return 1
	}

	report.RPC.Status = "ok"
	report.RPC.ChainID = id.Int64()
	report.ObservedChainID = id.Int64()
	if !asJSON {
		fmt.Printf("OK (ChainID: %s)", id.String())
	}

	switch {
	case st.Chain.ChainID == 0:
		st.Chain.ChainID = id.Int64()
		report.ChainIDUpdated = true
		if !asJSON {
			fmt.Printf(" - UPDATED CONFIG")
			if dryRun {
				fmt.Printf(" (DRY RUN)")
			}
		}
		if !dryRun {
			if err := config.Save(st, path); err != nil {
				report.SaveError = err.Error()
			} else {
				report.ConfigUpdated = true
			}
		}
	case id.Cmp(big.NewInt(st.Chain.ChainID)) != 0:
		report.RPC.Error = fmt.Sprintf("Mismatch! Expected %d", st.Chain.ChainID)
		if !asJSON {
			fmt.Printf(" - MISMATCH! Expected %d", st.Chain.ChainID)
		}
	default:
		if !asJSON {
			fmt.Printf(" - Verified")
		}
	}
	if !asJSON {
		fmt.Println()
	}

	if asJSON {
		emitReport(report)
	}
	return 0
}

func emitReport(report models.TestReport) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
}
