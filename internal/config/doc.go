/*
Package config provides configuration management for the pycache cache layer.

Settings are resolved from three sources in increasing precedence: compiled-in
defaults, a YAML settings file, and PYCACHE_* environment variables.

Example:

	settings := config.NewDefault()
	if err := settings.LoadFromFile("/etc/pycache/config.yaml"); err != nil {
		log.Fatal(err)
	}
	if err := settings.LoadFromEnv(); err != nil {
		log.Fatal(err)
	}
	if err := settings.Validate(); err != nil {
		log.Fatal(err)
	}

Size budgets accept human-readable strings ("10GB", "512MB") or plain byte
counts. The prefer_hardlinks and copy_on_write flags are carried for the
environment materializer and are not acted on by the cache itself.
*/
package config
