// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads fieldsync configuration.
//
// Configuration comes from a single file named by the FIELDSYNC_CONFIG
// environment variable or the --config flag. Files ending in .json or
// .jsonc are parsed as JSON with comments and trailing commas; every
// other extension is parsed as YAML. Values may reference environment
// variables with ${VAR} or ${VAR:-default}.
//
// A minimal file:
//
//	server:
//	  host: collab.example.com
//	  space_id: cfexampleapi
//	api:
//	  base_url: https://api.example.com
//	credential:
//	  token_file: ${HOME}/.config/fieldsync/token
package config
