// Package config loads gigledger's YAML configuration.
//
// The file is decoded with yaml.v3 and unified with an embedded CUE schema,
// which rejects unknown keys, checks value shapes and fills defaults. An
// absent file yields the schema defaults.
//
//	database: ledger.db
//	remote:
//	  url: http://localhost:8081
//	  timeout: 10s
//	poll:
//	  interval: 30s
//	status:
//	  addr: 127.0.0.1:8082
//	log:
//	  level: info
package config
