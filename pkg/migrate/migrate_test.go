package migrate

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-inventory/pkg/config"
	"github.com/angelmondragon/marketplace-inventory/pkg/logger"
)

func TestRunRejectsBadInput(t *testing.T) {
	ctx := context.Background()

	err := Run(ctx, nil, DefaultDir, "redo", nil)
	require.ErrorContains(t, err, `unknown migrate command "redo"`)

	require.ErrorIs(t, Run(ctx, nil, DefaultDir, CommandUp, nil), errNoDB)
	require.ErrorIs(t, Run(ctx, &sql.DB{}, "  ", CommandStatus, nil), errNoDir)
}

func TestParseVersion(t *testing.T) {
	v, err := parseVersion(" 20260301090000 ")
	require.NoError(t, err)
	require.EqualValues(t, 20260301090000, v)

	for _, raw := range []string{"", "latest", "-5"} {
		_, err := parseVersion(raw)
		require.Error(t, err, raw)
	}
}

func TestMigrateToVersionValidatesBeforeConnecting(t *testing.T) {
	err := MigrateToVersion(context.Background(), nil, DefaultDir, "nope", nil)
	require.ErrorContains(t, err, "invalid version")
}

func TestMaybeRunDevSkipsOutsideDev(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test"})
	cases := map[string]*config.Config{
		"prod":       {App: config.AppConfig{Env: config.AppEnvProd}, FeatureFlags: config.FeatureFlagsConfig{AutoMigrate: true}},
		"flag off":   {App: config.AppConfig{Env: config.AppEnvDev}},
		"sqlite dev": {App: config.AppConfig{Env: config.AppEnvDev}, FeatureFlags: config.FeatureFlagsConfig{AutoMigrate: true}, DB: config.DBConfig{Driver: config.DBDriverSQLite}},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			// a nil client would panic if migrations were attempted
			require.NoError(t, MaybeRunDev(context.Background(), cfg, logg, nil))
		})
	}
}
