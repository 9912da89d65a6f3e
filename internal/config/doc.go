// Package config loads the tld settings.
//
// Settings are resolved in layers, each overriding the previous one:
//
//  1. built-in defaults (see Defaults)
//  2. config.yaml in the configuration directory
//  3. TLD_* environment variables
//  4. command line flags, applied by the cmd package
//
// The configuration directory is TLD_CONFIG_DIR when set, otherwise
// teledetection/ under os.UserConfigDir(). It also holds the persisted
// credentials managed by the credentials package. When the directory cannot
// be created because of missing permissions, ConfigDir is left empty and
// credentials are only kept in memory.
package config
