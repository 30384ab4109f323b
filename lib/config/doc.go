// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the YAML configuration for Beacon binaries.
//
// The file is named by the BEACON_CONFIG environment variable ([Load])
// or a --config flag ([LoadFile]). There is no discovery.
//
// A file may carry development, staging, and production sections that
// override the base values when [Config].Environment matches. Path
// fields support ${HOME}, ${BEACON_ROOT}, and ${VAR:-default}.
//
//	environment: development
//	paths:
//	  root: ${HOME}/.local/share/beacon
//	store:
//	  backend: sqlite
//	  path: ${BEACON_ROOT}/beacon.db
//	sync:
//	  repair_delay: 5s
//	chat:
//	  max_message_length: 4096
//	log:
//	  level: info
package config
