// Package policy holds the per-sector rules the gate enforces.
//
// A Policy binds a sector name to a required keyword and a numeric
// threshold. Sector names are stored upper case and keywords lower case;
// Normalize is the single place where that canonical form is produced, so
// every Store implementation and every caller agrees on it.
//
// # Stores
//
// Store is implemented by MemoryStore in this package and by the SQLite
// backend in pkg/storage. All implementations have upsert semantics: defining
// a rule for an existing sector replaces the previous policy entirely.
// Policies are never deleted.
//
// # Rules Files
//
// Rules may also be declared in a YAML file:
//
//	rules:
//	  - sector: havacilik
//	    threshold: 0.5
//	    keyword: basınç
//	    unit: psi
//
// LoadRulesFile parses and normalizes such a file, and Watcher reloads it
// whenever it changes on disk:
//
//	w, err := policy.NewWatcher(&policy.WatcherConfig{Path: "rules.yaml"}, logger)
//	if err != nil {
//	    return err
//	}
//	go w.Watch(ctx, func() error {
//	    rules, err := policy.LoadRulesFile("rules.yaml")
//	    if err != nil {
//	        return err
//	    }
//	    _, err = policy.Apply(ctx, store, rules)
//	    return err
//	})
package policy
