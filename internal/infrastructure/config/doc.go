// Package config loads, defaults and validates the bridge
// configuration.
//
// Configuration is read once at startup from a YAML file, after which
// environment variables named MESHBRIDGE_SECTION_KEY override selected
// string settings. Secrets such as the cloud token and the JWT signing
// secret are expected to arrive through the environment rather than
// the file, and the operator password is only ever handled as an
// argon2id hash.
//
// Load is the single entry point:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// A config that fails Validate never reaches the rest of the bridge;
// every problem is reported in one error so a broken deployment is
// fixed in one edit.
package config
