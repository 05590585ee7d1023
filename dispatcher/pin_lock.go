// Copyright (C) 2025 vagent-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package dispatcher

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/vagent-project/vagent/errkind"
	"github.com/vagent-project/vagent/internal/logger"
	"github.com/vagent-project/vagent/internal/metrics"
	"github.com/vagent-project/vagent/ipc"
	"github.com/vagent-project/vagent/keystore"
	"github.com/vagent-project/vagent/locked"
	"github.com/vagent-project/vagent/pinwrap"
	"github.com/vagent-project/vagent/vaultmodel"
)

// wrappedMasterLockStale is how long a ".lock" sentinel is honored before a
// writer assumes the process that created it died without cleaning up.
const wrappedMasterLockStale = 5 * time.Minute

// tryPinUnlock is handleUnlock's fast path when PIN-wrap is configured: a
// single PIN prompt instead of the master-password retry loop. handled is
// false when there's no wrapped blob to try, so the caller falls through to
// a normal master-password Unlock.
func (d *Dispatcher) tryPinUnlock(ctx context.Context, db *vaultmodel.LocalDb, tty string, env map[string]string) (ipc.Response, bool) {
	pin, err := d.Prompt.Prompt(ctx, "vagent", "PIN", "Enter your unlock PIN", tty, env)
	if err != nil {
		return ipc.Response{}, false
	}

	handled, unlockErr := d.unlockWithPin(pin, d.PinSecret)
	if !handled {
		return ipc.Response{}, false
	}
	if unlockErr != nil {
		metrics.UnlockEvents.WithLabelValues("failure").Inc()
		return asErrorResponse(unlockErr), true
	}

	metrics.KeystoreLocked.Set(0)
	metrics.UnlockEvents.WithLabelValues("success").Inc()
	set := keystore.BuildRepromptSet(db.Entries)
	d.Store.SetReprompt(set)
	metrics.RepromptSetSize.Set(float64(set.Len()))
	return ipc.Ack(), true
}

// LocalSecret resolves the device-local secret a PIN is combined with,
// keyed by profile name (section 4.5 step 2). The implementation that
// cmd/vagent-agent wires in (localSecret) keeps the secret in a file, not in
// an OS keyring.
type LocalSecret func(profile string) ([]byte, error)

// pinTrackerFile is a sibling of WrappedMasterFile holding the fail_count/
// last_seen_counter keyring metadata that section 4.5 describes as separate
// from the AEAD-protected blob itself.
func (d *Dispatcher) pinTrackerFile() string {
	return d.Dirs.WrappedMasterFile() + ".tracker"
}

func (d *Dispatcher) loadPinTracker() pinwrap.FailTracker {
	data, err := os.ReadFile(d.pinTrackerFile())
	if err != nil {
		return pinwrap.FailTracker{}
	}
	var t pinwrap.FailTracker
	if json.Unmarshal(data, &t) != nil {
		return pinwrap.FailTracker{}
	}
	return t
}

func (d *Dispatcher) savePinTracker(t pinwrap.FailTracker) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return os.WriteFile(d.pinTrackerFile(), data, 0o600)
}

// lockWithPin implements section 4.5's wrap-on-lock behavior: instead of
// discarding the user KeyPair, wrap it to disk so the next unlock can
// re-derive from a PIN. Falls back to a plain clear if PIN-wrap isn't
// configured or the secret lookup fails.
func (d *Dispatcher) lockWithPin(secret LocalSecret) {
	cfg := d.config()
	if cfg.Pin == nil || !cfg.Pin.Enabled || secret == nil {
		d.Store.Clear()
		return
	}

	key := d.Store.Key(nil)
	if key == nil {
		d.Store.Clear()
		return
	}

	localSecret, err := secret(cfg.Pin.Profile)
	if err != nil {
		if d.Log != nil {
			d.Log.Warn("pin-wrap local secret unavailable, falling back to full lock", logger.Error(err))
		}
		d.Store.Clear()
		return
	}

	tracker := d.loadPinTracker()
	blob, err := pinwrap.Wrap(nil, localSecret, cfg.Pin.Profile, key, pinwrap.DefaultArgon2Params(), tracker.LastSeenCounter+1, nil)
	d.Store.Clear()
	if err != nil {
		if d.Log != nil {
			d.Log.Warn("pin-wrap failed, master key discarded", logger.Error(err))
		}
		return
	}

	if err := writeWrappedMaster(d.Dirs.WrappedMasterFile(), blob); err != nil && d.Log != nil {
		d.Log.Warn("failed to persist pin-wrapped master key", logger.Error(err))
	}
	tracker.LastSeenCounter = blob.Counter
	_ = d.savePinTracker(tracker)
}

// unlockWithPin attempts the PIN-wrap fast path before handleUnlock falls
// back to a full master-password unlock. Returns ok=false (with no error)
// when there is no blob to try, so the caller proceeds to the normal flow.
func (d *Dispatcher) unlockWithPin(pin string, secret LocalSecret) (ok bool, err error) {
	cfg := d.config()
	if cfg.Pin == nil || !cfg.Pin.Enabled || secret == nil {
		return false, nil
	}

	blob, err := readWrappedMaster(d.Dirs.WrappedMasterFile())
	if err != nil {
		return false, nil
	}

	localSecret, err := secret(cfg.Pin.Profile)
	if err != nil {
		return false, err
	}

	tracker := d.loadPinTracker()
	key, shouldRewrap, unwrapErr := pinwrap.Unwrap([]byte(pin), localSecret, blob, &tracker)
	_ = d.savePinTracker(tracker)

	if unwrapErr != nil {
		if errkind.Is(unwrapErr, errkind.KindPinTooManyFailures) {
			_ = os.Remove(d.Dirs.WrappedMasterFile())
			_ = os.Remove(d.pinTrackerFile())
		}
		return true, unwrapErr
	}

	// Org keys are not recoverable from a pin-wrap blob (it only wraps the
	// user KeyPair); org-owned entries stay inaccessible until a full
	// master-password Unlock repopulates them.
	d.Store.Unlock(key, map[string]*locked.KeyPair{})
	if shouldRewrap {
		if rewrapped, werr := pinwrap.Wrap([]byte(pin), localSecret, cfg.Pin.Profile, key, pinwrap.DefaultArgon2Params(), blob.Counter+1, blob.ExpiresAt); werr == nil {
			_ = writeWrappedMaster(d.Dirs.WrappedMasterFile(), rewrapped)
		}
	}
	return true, nil
}

// acquireWrappedMasterLock gates writers to path with a ".lock" sentinel
// created via O_EXCL, so two concurrent lock/unlock sequences never interleave
// their write-temp-then-rename. A sentinel older than wrappedMasterLockStale
// is assumed to be left behind by a process that died mid-write and is
// reclaimed rather than blocking forever.
func acquireWrappedMasterLock(path string) (release func(), err error) {
	lockPath := path + ".lock"

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if !os.IsExist(err) {
			return nil, err
		}
		if info, statErr := os.Stat(lockPath); statErr == nil && time.Since(info.ModTime()) > wrappedMasterLockStale {
			_ = os.Remove(lockPath)
			f, err = os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		}
		if err != nil {
			return nil, errkind.Wrap(errkind.KindSaveWrappedMaster, err, "wrapped master blob is locked by another writer")
		}
	}
	f.Close()

	return func() { _ = os.Remove(lockPath) }, nil
}

func writeWrappedMaster(path string, blob *vaultmodel.WrappedMasterBlob) error {
	release, err := acquireWrappedMasterLock(path)
	if err != nil {
		return err
	}
	defer release()

	data, err := json.MarshalIndent(blob, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readWrappedMaster(path string) (*vaultmodel.WrappedMasterBlob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var blob vaultmodel.WrappedMasterBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, err
	}
	return &blob, nil
}
