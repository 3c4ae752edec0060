// Copyright 2026 Blink Labs Software
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

package ferret_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/blinklabs-io/ferret"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const watcherSettingsYaml = `
networks:
  - name: libera
    nick: ferret
    channels:
      - "#ferret"
`

func TestSettingsWatcher(t *testing.T) {
	defer goleak.VerifyNone(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "ferret.yaml")
	require.NoError(t, os.WriteFile(path, []byte(watcherSettingsYaml), 0o644))
	changedChan := make(chan *ferret.Settings, 4)
	watcher, err := ferret.NewSettingsWatcher(
		path,
		nil,
		func(s *ferret.Settings) {
			changedChan <- s
		},
	)
	require.NoError(t, err)
	defer watcher.Stop()

	// A valid rewrite is delivered to the callback
	updated := strings.Replace(watcherSettingsYaml, "#ferret", "#ops", 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))
	select {
	case s := <-changedChan:
		require.Len(t, s.Networks, 1)
		assert.Equal(t, []string{"#ops"}, s.Networks[0].Channels)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for settings reload")
	}

	// An invalid rewrite is dropped without a callback
	require.NoError(t, os.WriteFile(path, []byte("networks: []\n"), 0o644))
	select {
	case <-changedChan:
		t.Fatal("unexpected reload of invalid settings")
	case <-time.After(time.Second):
	}

	// The watcher keeps running after a rejected reload
	final := strings.Replace(watcherSettingsYaml, "#ferret", "#final", 1)
	require.NoError(t, os.WriteFile(path, []byte(final), 0o644))
	select {
	case s := <-changedChan:
		require.Len(t, s.Networks, 1)
		assert.Equal(t, []string{"#final"}, s.Networks[0].Channels)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for settings reload")
	}
}
