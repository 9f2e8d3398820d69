package models

// RPCResult is the outcome of probing the configured RPC endpoint.
type RPCResult struct {
	URL     string `json:"url"`
	Status  string `json:"status"`
	ChainID int64  `json:"chain_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TestReport summarizes a configuration test run.
type TestReport struct {
	ConfigPath      string    `json:"config_path"`
	ValidStructure  bool      `json:"valid_structure"`
	StructureErrors []string  `json:"structure_errors,omitempty"`
	DryRun          bool      `json:"dry_run"`
	ChainName       string    `json:"chain_name,omitempty"`
	ConfigChainID   int64     `json:"config_chain_id,omitempty"`
	ObservedChainID int64     `json:"observed_chain_id,omitempty"`
	ChainIDUpdated  bool      `json:"chain_id_updated,omitempty"`
	RPC             RPCResult `json:"rpc"`
	ConfigUpdated   bool      `json:"config_updated,omitempty"`
	SaveError       string    `json:"save_error,omitempty"`
}
