//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/Tutortoise/catascan-service/config"
	"github.com/Tutortoise/catascan-service/logging"
	"github.com/Tutortoise/catascan-service/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"
)

func TestMySQLRoundTrip(t *testing.T) {
	ctx := context.Background()

	container, err := tcmysql.Run(ctx, "mysql:8.0.36",
		tcmysql.WithDatabase("catascan"),
		tcmysql.WithUsername("catascan"),
		tcmysql.WithPassword("catascan"),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	s, err := Open(config.DatabaseConfig{
		Driver:   config.DriverMySQL,
		User:     "catascan",
		Password: "catascan",
		Host:     host,
		Port:     port.Port(),
		Name:     "catascan",
	}, logging.Discard())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Migrate())

	user := int64(11)
	for _, label := range []string{"normal", "mature"} {
		require.NoError(t, s.SavePrediction(ctx, &models.PredictionRecord{
			ImagePath:   "static/uploads/" + label + ".jpg",
			Prediction:  label,
			Explanation: label,
			UserID:      &user,
		}))
	}

	records, err := s.ListByUser(ctx, user, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "mature", records[0].Prediction)
}
