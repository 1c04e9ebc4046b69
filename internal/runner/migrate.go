package runner

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/txn2/log-sessionizer/pkg/database/migrate"
)

// Migration entry points, replaced in tests.
var (
	migrateUp      = migrate.Run
	migrateDown    = migrate.Down
	migrateSteps   = migrate.Steps
	migrateVersion = migrate.Version
)

// ErrInvalidMigrateAction is returned for an unknown migrate action.
var ErrInvalidMigrateAction = errors.New("invalid migrate action")

// MigrateActions lists the accepted actions for Migrate, besides a signed
// step count such as +1 or -2.
const MigrateActions = "up, down, version"

// ValidateMigrateAction reports whether action is accepted by Migrate.
func ValidateMigrateAction(action string) error {
	_, _, err := parseMigrateAction(action)
	return err
}

// parseMigrateAction splits action into a verb and, for step actions, a
// non-zero step count.
func parseMigrateAction(action string) (string, int, error) {
	switch action {
	case "up", "down", "version":
		return action, 0, nil
	}
	if strings.HasPrefix(action, "+") || strings.HasPrefix(action, "-") {
		n, err := strconv.Atoi(action)
		if err == nil && n != 0 {
			return "steps", n, nil
		}
	}
	return "", 0, fmt.Errorf("%w %q (want %s, or a signed step count)", ErrInvalidMigrateAction, action, MigrateActions)
}

// Migrate applies action to db and reports the resulting schema version on
// out.
func Migrate(db *sql.DB, action string, out io.Writer) error {
	verb, steps, err := parseMigrateAction(action)
	if err != nil {
		return err
	}

	switch verb {
	case "up":
		err = migrateUp(db)
	case "down":
		err = migrateDown(db)
	case "steps":
		err = migrateSteps(db, steps)
	}
	if err != nil {
		return err
	}

	version, dirty, err := migrateVersion(db)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "schema version %d (dirty: %t)\n", version, dirty)
	return nil
}
