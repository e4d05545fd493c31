package device

import (
	"context"
	"time"

	"github.com/bft-labs/sensorrelay/internal/codec"
	"github.com/bft-labs/sensorrelay/internal/domain"
	"github.com/bft-labs/sensorrelay/internal/ports"
)

// listFiles announces every stored file that is not being recorded, then
// signals the end of the listing.
func (a *Agent) listFiles(ctx context.Context, ch ports.PeerChannel) {
	names, err := a.store.List()
	if err != nil {
		a.logger.Error("failed to list trial files", ports.Err(err))
	}
	open := a.recorder.OpenFiles()

	listed := 0
	for _, name := range names {
		if open[name] {
			continue
		}
		count, err := a.batchCount(name)
		if err != nil {
			a.logger.Warn("skipping unreadable file", ports.String("file", name), ports.Err(err))
			continue
		}
		if !a.reply(ctx, ch, domain.ActionFileListed, domain.Listing{Name: name, BatchCount: count}) {
			return
		}
		listed++
	}
	a.reply(ctx, ch, domain.ActionListComplete, listed)
}

func (a *Agent) batchCount(name string) (int, error) {
	f, err := a.store.Open(name)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return min(domain.BatchCount(f.Size()), domain.MaxBatchCount), nil
}

// deleteFile removes one file, or every trial file for domain.DeleteAll.
// Files open for recording are kept. The deletion is acknowledged in all
// cases, including when the file was already gone.
func (a *Agent) deleteFile(ctx context.Context, ch ports.PeerChannel, target string) {
	open := a.recorder.OpenFiles()
	remove := func(name string) {
		if open[name] {
			a.logger.Warn("not deleting file being recorded", ports.String("file", name))
			return
		}
		if err := a.store.Remove(name); err != nil {
			a.logger.Error("failed to delete file", ports.String("file", name), ports.Err(err))
			return
		}
		a.logger.Info("file deleted", ports.String("file", name))
	}

	if target == domain.DeleteAll {
		names, err := a.store.List()
		if err != nil {
			a.logger.Error("failed to list trial files", ports.Err(err))
		}
		for _, name := range names {
			if domain.IsTrial(name, a.prefix) {
				remove(name)
			}
		}
	} else {
		remove(target)
	}
	a.reply(ctx, ch, domain.ActionFileDeleted, target)
}

// sendFile streams name as batches in increasing index order. Any failure
// ends only this loop.
func (a *Agent) sendFile(ctx context.Context, ch ports.PeerChannel, name string) {
	logger := a.logger.With(ports.String("file", name))
	f, err := a.store.Open(name)
	if err != nil {
		logger.Error("failed to open file for send", ports.Err(err))
		return
	}
	defer f.Close()

	var initial int64
	if tn, err := domain.ParseTrialName(name); err == nil {
		initial = tn.InitialMillis()
	} else {
		logger.Warn("file name carries no start time")
	}

	count := domain.BatchCount(f.Size())
	if count > domain.MaxBatchCount {
		logger.Warn("file exceeds batch limit, truncating",
			ports.Int("batches", count))
		count = domain.MaxBatchCount
	}

	logger.Info("sending file", ports.Int("batches", count))
	start := time.Now()

	rec := make([]byte, domain.BytesPerRecord)
	for i := 0; i < count; i++ {
		if ctx.Err() != nil {
			logger.Info("send cancelled", ports.Int("batch", i))
			return
		}
		if _, err := f.ReadAt(rec, int64(i)*domain.BytesPerRecord); err != nil {
			logger.Error("failed to read file",
				ports.Int("batch", i),
				ports.Err(err))
			return
		}

		b := domain.Batch{
			Index:     uint16(i),
			Count:     uint16(count),
			Timestamp: domain.BatchTimestamp(initial, i),
			Filename:  name,
		}
		b.SetRecord(rec)

		msg, err := codec.EncodeBatch(b)
		if err != nil {
			logger.Error("failed to encode batch", ports.Err(err))
			return
		}
		if err := ch.Send(ctx, msg); err != nil {
			logger.Warn("failed to send batch",
				ports.Int("batch", i),
				ports.Err(err))
			return
		}

		if a.pace > 0 {
			t := time.NewTimer(a.pace)
			select {
			case <-ctx.Done():
				t.Stop()
			case <-t.C:
			}
		}
	}

	logger.Info("file sent",
		ports.Int("batches", count),
		ports.Duration("elapsed", time.Since(start)))
}
