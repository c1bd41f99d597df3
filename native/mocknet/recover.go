package mocknet

import (
	"go.uber.org/zap"

	"github.com/Fraser999/safe-core/native"
)

func (c *Client) PutRecover(data native.Data, tr native.Trampoline, ctx native.Context) native.Status {
	if !data.ID.Kind.Valid() {
		return status(native.CodeInvalidOperation)
	}
	if !data.ID.Kind.Mutable() {
		return c.Put(data, tr, ctx)
	}
	c.puts.Add(1)
	content := append([]byte(nil), data.Content...)

	return c.submit("put_recover", ctx, tr, func(func(native.Event) bool) native.Event {
		owner := c.owner.Load()
		if owner == nil {
			return native.Failure(native.CodeOperationForbidden)
		}

		c.mu.Lock()
		defer c.mu.Unlock()

		old, exists, err := c.vault.Load(data.ID)
		if err != nil {
			return aborted(err)
		}
		if exists {
			if old.Owner != *owner {
				return native.Failure(native.CodeDataExists)
			}
			c.log.Debug("put recovered", zap.Stringer("id", data.ID), zap.Uint64("version", old.Version))
			return native.Success(native.Record{ID: data.ID, Version: old.Version})
		}
		if ev, ok := c.charge(*owner); !ok {
			return ev
		}
		if ev, ok := c.store(data.ID, *owner, data.Version, content); !ok {
			return ev
		}
		return native.Success(native.Record{ID: data.ID, Version: data.Version})
	})
}

func (c *Client) DeleteRecover(id native.DataID, version uint64, tr native.Trampoline, ctx native.Context) native.Status {
	if !id.Kind.Valid() || !id.Kind.Mutable() {
		return status(native.CodeInvalidOperation)
	}
	c.deletes.Add(1)

	return c.submit("delete_recover", ctx, tr, func(func(native.Event) bool) native.Event {
		owner := c.owner.Load()
		if owner == nil {
			return native.Failure(native.CodeOperationForbidden)
		}

		c.mu.Lock()
		defer c.mu.Unlock()

		if _, ev, ok := c.successor(id, *owner, version); !ok {
			if ev.Code == native.CodeNoSuchData {
				return native.Success(nil)
			}
			return ev
		}
		if err := c.vault.Remove(id); err != nil {
			return aborted(err)
		}
		return native.Success(nil)
	})
}

func (c *Client) SetRootDir(which native.RootDir, id native.DataID, tr native.Trampoline, ctx native.Context) native.Status {
	if !which.Valid() || !id.Kind.Valid() {
		return status(native.CodeInvalidOperation)
	}

	return c.submit("set_root_dir", ctx, tr, func(func(native.Event) bool) native.Event {
		c.mu.Lock()
		defer c.mu.Unlock()

		s := c.session
		if s == nil {
			return native.Failure(native.CodeOperationForbidden)
		}
		p := s.packet
		slot := p.root(which)
		if *slot != nil {
			return native.Failure(native.CodeRootDirExists)
		}
		*slot = &id

		sealed, err := sealSession(p, s.creds.Password)
		if err != nil {
			return aborted(err)
		}
		if err := c.vault.Store(Chunk{ID: sessionID(s.creds.Locator), Owner: p.Owner, Content: sealed, Size: len(sealed)}); err != nil {
			return aborted(err)
		}
		c.session = &session{creds: s.creds, packet: p}
		c.log.Info("root directory set", zap.Stringer("root", which), zap.Stringer("id", id))
		return native.Success(nil)
	})
}

func (c *Client) RootDir(which native.RootDir) (native.DataID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return native.DataID{}, false
	}
	slot := c.session.packet.root(which)
	if slot == nil || *slot == nil {
		return native.DataID{}, false
	}
	return **slot, true
}
