// Package cmd provides the CLI commands for the survey ledger.
//
// # Commands
//
// surveyd: Runs the ledger daemon. Serves the survey API, accepts oracle
// registrations and signed decryption callbacks, and journals state to
// Postgres or memory.
//
//	go run ./cmd/surveyd --addr=:8080 --oracle=http://localhost:8090
//	go run ./cmd/surveyd --config=surveyd.yaml
//
// oracle-sim: Runs a demo decryption oracle against a surveyd instance.
// Generates a signing key, registers it (with dummy attestation), and
// answers decryption requests by POSTing signed results to the ledger's
// callback endpoint.
//
//	go run ./cmd/oracle-sim --addr=:8090 --ledger=http://localhost:8080
//
// # Configuration
//
// surveyd supports a YAML configuration file via the --config flag.
// Command-line flags override config file values:
//
//	listen_addr: ":8080"
//	metrics_addr: ":9090"
//	oracle_url: "http://localhost:8090"
//	callback_url: "http://localhost:8080/oracle/callback"
//	postgres:
//	  host: "localhost"
//	  port: 5432
//	  user: "ledger"
//	  database: "ledger"
//	attestation:
//	  use_tdx: false
//	  tdx_remote_url: ""
//	  measurements_url: "demo"
package cmd
