package mocknet

import (
	"go.uber.org/zap"

	"github.com/Fraser999/safe-core/native"
)

func aborted(err error) native.Event {
	return native.Failuref(native.CodeOperationAborted, err.Error())
}

func (c *Client) CreateAccount(creds native.Credentials, tr native.Trampoline, ctx native.Context) native.Status {
	if creds.Locator == "" || creds.Password == "" {
		return status(native.CodeInvalidOperation)
	}
	return c.submit("create_account", ctx, tr, func(func(native.Event) bool) native.Event {
		id := sessionID(creds.Locator)

		c.mu.Lock()
		defer c.mu.Unlock()

		if _, exists, err := c.vault.Load(id); err != nil {
			return aborted(err)
		} else if exists {
			return native.Failure(native.CodeAccountExists)
		}

		owner, err := newOwner()
		if err != nil {
			return aborted(err)
		}
		sealed, err := sealSession(sessionPacket{Owner: owner}, creds.Password)
		if err != nil {
			return aborted(err)
		}
		if err := c.vault.Store(Chunk{ID: id, Owner: owner, Content: sealed, Size: len(sealed)}); err != nil {
			return aborted(err)
		}
		usage := encodeUsage(accountUsage{Available: c.opts.Quota})
		if err := c.vault.Store(Chunk{ID: usageID(owner), Owner: owner, Content: usage, Size: len(usage)}); err != nil {
			return aborted(err)
		}

		c.session = &session{creds: creds, packet: sessionPacket{Owner: owner}}
		c.owner.Store(&owner)
		c.log.Info("account created", zap.String("owner", owner.Short()))
		return native.Success(nil)
	})
}

func (c *Client) Login(creds native.Credentials, tr native.Trampoline, ctx native.Context) native.Status {
	if creds.Locator == "" || creds.Password == "" {
		return status(native.CodeInvalidOperation)
	}
	return c.submit("login", ctx, tr, func(func(native.Event) bool) native.Event {
		chunk, ok, err := c.vault.Load(sessionID(creds.Locator))
		if err != nil {
			return aborted(err)
		}
		if !ok {
			return native.Failure(native.CodeNoSuchAccount)
		}
		p, err := openSession(chunk.Content, creds.Password)
		if err != nil {
			return native.Failuref(native.CodeNoSuchAccount, err.Error())
		}
		owner := p.Owner
		c.mu.Lock()
		c.session = &session{creds: creds, packet: p}
		c.mu.Unlock()
		c.owner.Store(&owner)
		c.log.Info("logged in", zap.String("owner", owner.Short()))
		return native.Success(nil)
	})
}

func (c *Client) GetAccountInfo(tr native.Trampoline, ctx native.Context) native.Status {
	return c.submit("get_account_info", ctx, tr, func(func(native.Event) bool) native.Event {
		owner := c.owner.Load()
		if owner == nil {
			return native.Failure(native.CodeOperationForbidden)
		}
		c.mu.Lock()
		u, ev, ok := c.usage(*owner)
		c.mu.Unlock()
		if !ok {
			return ev
		}
		return native.Success(native.AccountInfo{Used: u.Used, Available: u.Available})
	})
}

func (c *Client) Get(id native.DataID, tr native.Trampoline, ctx native.Context) native.Status {
	if !id.Kind.Valid() {
		return status(native.CodeInvalidOperation)
	}
	c.gets.Add(1)

	if id.Kind == native.DataImmutable && tr != nil {
		if content, ok := c.cache.get(id.Name); ok {
			c.log.Debug("cache hit", zap.Stringer("id", id), zap.Uint64("ctx", uint64(ctx)))
			tr(ctx, native.Success(native.Record{ID: id, Content: c.alloc.Alloc(content)}))
			return native.StatusOK
		}
	}

	return c.submit("get", ctx, tr, func(func(native.Event) bool) native.Event {
		chunk, content, ev, ok := c.fetch(id)
		if !ok {
			return ev
		}
		return native.Success(native.Record{ID: id, Version: chunk.Version, Content: c.alloc.Alloc(content)})
	})
}

func (c *Client) GetStream(id native.DataID, chunkSize uint32, tr native.Trampoline, ctx native.Context) native.Status {
	if !id.Kind.Valid() || chunkSize == 0 {
		return status(native.CodeInvalidOperation)
	}
	c.gets.Add(1)

	return c.submit("get_stream", ctx, tr, func(emit func(native.Event) bool) native.Event {
		chunk, content, ev, ok := c.fetch(id)
		if !ok {
			return ev
		}
		total := uint64(len(content))
		for off := uint64(0); off < total; off += uint64(chunkSize) {
			end := min(off+uint64(chunkSize), total)
			progress := native.Event{
				Kind:  native.EventProgress,
				Done:  end,
				Total: total,
				Chunk: c.alloc.Alloc(content[off:end]),
			}
			if !emit(progress) {
				return native.Event{}
			}
		}
		return native.Success(native.Record{ID: id, Version: chunk.Version})
	})
}

func (c *Client) Put(data native.Data, tr native.Trampoline, ctx native.Context) native.Status {
	if !data.ID.Kind.Valid() {
		return status(native.CodeInvalidOperation)
	}
	c.puts.Add(1)
	content := append([]byte(nil), data.Content...)

	return c.submit("put", ctx, tr, func(func(native.Event) bool) native.Event {
		owner := c.owner.Load()
		if owner == nil {
			return native.Failure(native.CodeOperationForbidden)
		}
		id := data.ID
		if id.Kind == native.DataImmutable {
			id = native.DataID{Kind: native.DataImmutable, Name: ImmutableName(content)}
		}

		c.mu.Lock()
		defer c.mu.Unlock()

		if _, exists, err := c.vault.Load(id); err != nil {
			return aborted(err)
		} else if exists {
			if id.Kind == native.DataImmutable {
				return native.Success(id)
			}
			return native.Failure(native.CodeDataExists)
		}
		if ev, ok := c.charge(*owner); !ok {
			return ev
		}
		if ev, ok := c.store(id, *owner, data.Version, content); !ok {
			return ev
		}
		if id.Kind == native.DataImmutable {
			c.cache.put(id.Name, content)
		}
		return native.Success(id)
	})
}

func (c *Client) Post(data native.Data, tr native.Trampoline, ctx native.Context) native.Status {
	if !data.ID.Kind.Valid() || !data.ID.Kind.Mutable() {
		return status(native.CodeInvalidOperation)
	}
	c.posts.Add(1)
	content := append([]byte(nil), data.Content...)

	return c.submit("post", ctx, tr, func(func(native.Event) bool) native.Event {
		owner := c.owner.Load()
		if owner == nil {
			return native.Failure(native.CodeOperationForbidden)
		}

		c.mu.Lock()
		defer c.mu.Unlock()

		old, ev, ok := c.successor(data.ID, *owner, data.Version)
		if !ok {
			return ev
		}
		if ev, ok := c.store(data.ID, old.Owner, data.Version, content); !ok {
			return ev
		}
		return native.Success(nil)
	})
}

func (c *Client) Delete(id native.DataID, version uint64, tr native.Trampoline, ctx native.Context) native.Status {
	if !id.Kind.Valid() || !id.Kind.Mutable() {
		return status(native.CodeInvalidOperation)
	}
	c.deletes.Add(1)

	return c.submit("delete", ctx, tr, func(func(native.Event) bool) native.Event {
		owner := c.owner.Load()
		if owner == nil {
			return native.Failure(native.CodeOperationForbidden)
		}

		c.mu.Lock()
		defer c.mu.Unlock()

		if _, ev, ok := c.successor(id, *owner, version); !ok {
			return ev
		}
		if err := c.vault.Remove(id); err != nil {
			return aborted(err)
		}
		return native.Success(nil)
	})
}

func (c *Client) Append(app native.Append, tr native.Trampoline, ctx native.Context) native.Status {
	kind := app.Target.Kind
	if kind != native.DataPubAppendable && kind != native.DataPrivAppendable {
		return status(native.CodeInvalidOperation)
	}
	c.appends.Add(1)
	extra := append([]byte(nil), app.Content...)

	return c.submit("append", ctx, tr, func(func(native.Event) bool) native.Event {
		owner := c.owner.Load()
		if owner == nil {
			return native.Failure(native.CodeOperationForbidden)
		}

		c.mu.Lock()
		defer c.mu.Unlock()

		old, content, ev, ok := c.fetch(app.Target)
		if !ok {
			return ev
		}
		if kind == native.DataPrivAppendable && old.Owner != *owner {
			return native.Failure(native.CodeOperationForbidden)
		}
		if ev, ok := c.charge(*owner); !ok {
			return ev
		}
		if ev, ok := c.store(app.Target, old.Owner, old.Version, append(content, extra...)); !ok {
			return ev
		}
		return native.Success(nil)
	})
}

// fetch loads and decompresses a chunk.
func (c *Client) fetch(id native.DataID) (Chunk, []byte, native.Event, bool) {
	chunk, ok, err := c.vault.Load(id)
	if err != nil {
		return Chunk{}, nil, aborted(err), false
	}
	if !ok {
		return Chunk{}, nil, native.Failure(native.CodeNoSuchData), false
	}
	content, err := decompress(chunk.Content, chunk.Compression, chunk.Size)
	if err != nil {
		return Chunk{}, nil, aborted(err), false
	}
	if id.Kind == native.DataImmutable {
		c.cache.put(id.Name, content)
	}
	return chunk, content, native.Event{}, true
}

func (c *Client) store(id native.DataID, owner native.XorName, version uint64, content []byte) (native.Event, bool) {
	stored, tag, err := compress(content, c.opts.Compression)
	if err != nil {
		return aborted(err), false
	}
	err = c.vault.Store(Chunk{
		ID:          id,
		Owner:       owner,
		Version:     version,
		Size:        len(content),
		Compression: tag,
		Content:     stored,
	})
	if err != nil {
		return aborted(err), false
	}
	return native.Event{}, true
}

// successor checks that version may replace the chunk at id on behalf of
// owner. Callers hold c.mu.
func (c *Client) successor(id native.DataID, owner native.XorName, version uint64) (Chunk, native.Event, bool) {
	old, ok, err := c.vault.Load(id)
	if err != nil {
		return Chunk{}, aborted(err), false
	}
	if !ok {
		return Chunk{}, native.Failure(native.CodeNoSuchData), false
	}
	if old.Owner != owner {
		return Chunk{}, native.Failure(native.CodeOperationForbidden), false
	}
	if version != old.Version+1 {
		return Chunk{}, native.Failure(native.CodeInvalidSuccessor), false
	}
	return old, native.Event{}, true
}

func (c *Client) usage(owner native.XorName) (accountUsage, native.Event, bool) {
	chunk, ok, err := c.vault.Load(usageID(owner))
	if err != nil {
		return accountUsage{}, aborted(err), false
	}
	if !ok {
		return accountUsage{}, native.Failure(native.CodeNoSuchAccount), false
	}
	u, err := decodeUsage(chunk.Content)
	if err != nil {
		return accountUsage{}, aborted(err), false
	}
	return u, native.Event{}, true
}

// charge books one chunk against owner's quota. Callers hold c.mu.
func (c *Client) charge(owner native.XorName) (native.Event, bool) {
	u, ev, ok := c.usage(owner)
	if !ok {
		return ev, false
	}
	if u.Available == 0 {
		return native.Failure(native.CodeLowBalance), false
	}
	u.Used++
	u.Available--
	b := encodeUsage(u)
	if err := c.vault.Store(Chunk{ID: usageID(owner), Owner: owner, Content: b, Size: len(b)}); err != nil {
		return aborted(err), false
	}
	return native.Event{}, true
}
