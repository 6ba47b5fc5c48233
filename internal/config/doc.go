// Package config handles configuration loading for chorale.
//
// # Overview
//
// Configuration is loaded from YAML (default) or TOML files with environment
// variable expansion, duration parsing, defaults and validation.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from CHORALE_CONFIG environment variable
//  2. ./chorale.yaml (current directory)
//  3. $XDG_CONFIG_HOME/chorale/config.yaml
//
// A file ending in .toml is decoded as TOML with the same keys.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${AUTH_SECRET}"
//
// A few variables also override values directly: CHORALE_DB_PATH,
// CHORALE_BASE_URL, FFMPEG_PATH, and AUTH_SECRET when jwt_secret is empty.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:3000"
//
//	database:
//	  path: "/var/lib/chorale/chorale.db"
//
//	auth:
//	  jwt_secret: "${AUTH_SECRET}"
//	  session_ttl: "720h"
//	  refresh_after: "5m"
//	  dev_login: false          # default: on only when no oauth provider is set
//	  dev_password: "test"
//
//	oauth:
//	  google: { client_id: "...", client_secret: "..." }
//	  naver:  { client_id: "...", client_secret: "..." }
//	  kakao:  { client_id: "...", client_secret: "..." }
//
//	site:
//	  base_url: "https://choir.example.org"
//
//	uploads:
//	  backend: "local"          # local, s3
//	  dir: "/var/lib/chorale/uploads"
//	  ffmpeg_path: "/usr/bin/ffmpeg"
//	  transcode_timeout: "10m"
//	  s3:
//	    endpoint: "http://minio:9000"
//	    region: "us-east-1"
//	    bucket: "chorale"
//	    access_key: "${S3_ACCESS_KEY}"
//	    secret_key: "${S3_SECRET_KEY}"
//	    public_base_url: "https://cdn.example.org/chorale"
//
//	tailscale:
//	  enabled: false
//	  hostname: "chorale"
//	  https: true
//	  funnel: false
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
