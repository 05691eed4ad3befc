// Package config provides the bridge configuration: validation switches for
// TypeScript and JavaScript, tsserver launch settings, workspace settings,
// plugins, and logging.
//
// Configuration is read from a TOML or YAML file selected by extension.
// Values may reference environment variables as ${VAR} or ${VAR:-default},
// and a small set of TSBRIDGE_* variables override file values. A missing
// file yields the defaults.
//
// # Live Reload
//
// A Store holds the current configuration and notifies subscribers after
// each successful reload. A Watcher reloads the Store when the file changes
// on disk:
//
//	store, err := config.NewStore(path)
//	if err != nil {
//	    return err
//	}
//	sub := store.OnDidChange(func() {
//	    js, ts := store.ValidationSettings()
//	    ...
//	})
//	defer sub.Unsubscribe()
//
//	w, err := config.NewWatcher(store)
//	...
//	go w.Run(ctx)
package config
