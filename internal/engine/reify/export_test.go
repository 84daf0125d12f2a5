package reify

import "path/filepath"

// RollbackWithLostBackup runs the failure path of a reify whose journal
// references a backup that no longer exists.
func RollbackWithLostBackup(r *Reifier, dir string, cause error) error {
	s := &run{r: r, journal: newJournal(filepath.Join(dir, "backup"))}
	s.journal.ops = append(s.journal.ops, op{
		kind:   opMove,
		path:   filepath.Join(dir, "entry"),
		backup: filepath.Join(dir, "backup", "1"),
	})
	return s.rollback(cause)
}
