// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mysql

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aipx/aipx/database/models"
	"github.com/aipx/aipx/database/plugin/metadata"
	"github.com/aipx/aipx/database/plugin/metadata/gormstore"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ metadata.MetadataStore = (*MetadataStoreMysql)(nil)

func TestBuildDSN(t *testing.T) {
	m, err := NewWithOptions(WithConn(gormstore.ConnParams{
		Host:     "db.local",
		Port:     3307,
		User:     "aipx",
		Password: "secret",
		Database: "ledger",
		SSLMode:  "true",
	}))
	require.NoError(t, err)
	dsn, dbName := m.buildDSN()
	assert.Equal(t, "ledger", dbName)
	assert.True(t, strings.HasPrefix(dsn, "aipx:secret@tcp(db.local:3307)/ledger?"), dsn)
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "tls=true")

	m, err = NewWithOptions(WithConn(gormstore.ConnParams{
		DSN: " u:p@tcp(h:3306)/other?parseTime=true ",
	}))
	require.NoError(t, err)
	dsn, dbName = m.buildDSN()
	assert.Equal(t, "u:p@tcp(h:3306)/other?parseTime=true", dsn)
	assert.Equal(t, "other", dbName)
}

func TestDefaults(t *testing.T) {
	m, err := NewWithOptions(WithConn(gormstore.ConnParams{Database: "ledger"}))
	require.NoError(t, err)
	assert.Equal(t, "localhost", m.conn.Host)
	assert.Equal(t, uint64(3306), m.conn.Port)
	assert.Equal(t, "root", m.conn.User)
	assert.Equal(t, "ledger", m.conn.Database)
	assert.Equal(t, "UTC", m.conn.TimeZone)
	assert.NotNil(t, m.logger)
}

func TestDSNHelpers(t *testing.T) {
	testDefs := []struct {
		dsn      string
		database string
		stripped string
	}{
		{
			dsn:      "u:p@tcp(h:3306)/aipx?parseTime=true",
			database: "aipx",
			stripped: "u:p@tcp(h:3306)/?parseTime=true",
		},
		{
			dsn:      "u:p@tcp(h:3306)/aipx",
			database: "aipx",
			stripped: "u:p@tcp(h:3306)/",
		},
		{
			dsn:      "u:p@tcp(h:3306)/",
			stripped: "u:p@tcp(h:3306)/",
		},
	}
	for _, testDef := range testDefs {
		db, ok := parseMysqlDatabaseFromDSN(testDef.dsn)
		assert.Equal(t, testDef.database != "", ok, testDef.dsn)
		assert.Equal(t, testDef.database, db)
		stripped, ok := stripDatabaseFromDSN(testDef.dsn)
		assert.True(t, ok)
		assert.Equal(t, testDef.stripped, stripped)
	}
}

func TestIsConflict(t *testing.T) {
	assert.True(t, isConflict(&mysql.MySQLError{Number: 1062}))
	assert.True(t, isConflict(fmt.Errorf("commit: %w", &mysql.MySQLError{Number: 1213})))
	assert.False(t, isConflict(&mysql.MySQLError{Number: 1146}))
	assert.False(t, isConflict(errors.New("bad connection")))
}

func TestMysqlLedgerAppendOnly(t *testing.T) {
	if os.Getenv("MYSQL_PASSWORD") == "" && os.Getenv("MYSQL_DSN") == "" {
		t.Skip("MYSQL_PASSWORD or MYSQL_DSN not set, skipping mysql integration test")
	}
	store, err := NewWithOptions(WithConn(gormstore.ConnParams{
		Host:     os.Getenv("MYSQL_HOST"),
		Password: os.Getenv("MYSQL_PASSWORD"),
		DSN:      os.Getenv("MYSQL_DSN"),
	}))
	require.NoError(t, err)
	require.NoError(t, store.Start())
	defer store.Close() //nolint:errcheck

	op := &models.Operator{
		Username:  fmt.Sprintf("my-%d", time.Now().UnixNano()),
		Role:      "judge",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.SetOperator(op, nil))
	item := &models.Item{
		OperatorID: op.ID,
		Content:    "SELECT 1",
		Status:     models.ItemStatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, store.AddItem(item, nil))
	tail, err := store.GetLedgerTail(nil)
	require.NoError(t, err)
	seq := uint64(1)
	if tail != nil {
		seq = tail.Sequence + 1
	}
	require.NoError(t, store.AddLedgerEntry(&models.LedgerEntry{
		Sequence:   seq,
		ItemID:     item.ID,
		EventType:  "submitted",
		Actor:      op.Username,
		EntryHash:  fmt.Sprintf("%064x", time.Now().UnixNano()),
		RecordedAt: time.Now().UTC().Truncate(time.Microsecond),
		Fields:     "{}",
	}, nil))
	result := store.DB().Exec("DELETE FROM ledger_entries WHERE sequence = ?", seq)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "append-only")
}
