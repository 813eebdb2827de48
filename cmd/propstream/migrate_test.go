// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propstream/propstream/pkg/errutil"
)

func TestMigrate_HasExpectedSubcommands(t *testing.T) {
	cmd := NewMigrateCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	for _, sub := range []string{"up", "down", "steps", "version", "force"} {
		assert.Contains(t, output, sub, "Help missing %q subcommand", sub)
	}
}

func TestMigrate_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	for _, sub := range []string{"up", "down", "version"} {
		t.Run(sub, func(t *testing.T) {
			cmd := NewMigrateCmd()
			cmd.SetOut(new(bytes.Buffer))
			cmd.SetErr(new(bytes.Buffer))
			cmd.SetArgs([]string{sub})

			err := cmd.Execute()
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
		})
	}
}

func TestMigrate_StepsRejectsNonInteger(t *testing.T) {
	cmd := NewMigrateCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"steps", "two"})

	err := cmd.Execute()
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "INVALID_ARGUMENT")
}

func TestMigrate_ForceRejectsNonInteger(t *testing.T) {
	cmd := NewMigrateCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"force", "latest"})

	err := cmd.Execute()
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "INVALID_ARGUMENT")
}
