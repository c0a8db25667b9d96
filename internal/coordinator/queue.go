package coordinator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/image2doc/image2doc/internal/event"
	"github.com/image2doc/image2doc/internal/model"
	"github.com/image2doc/image2doc/internal/ocr"
	"github.com/image2doc/image2doc/internal/pdfutil"
)

// run is the single queue loop. Conversions are strictly serialized: one
// item at a time, FIFO, with a fixed pacing delay between items.
func (c *Coordinator) run() {
	defer close(c.stopped)
	for {
		select {
		case <-c.baseCtx.Done():
			return
		case <-c.wake:
		}
		for {
			item, ok := c.dequeue()
			if !ok {
				break
			}
			c.process(item)
			if c.opts.QueuePacing > 0 {
				select {
				case <-c.baseCtx.Done():
					return
				case <-time.After(c.opts.QueuePacing):
				}
			}
		}
	}
}

func (c *Coordinator) dequeue() (queueItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		c.processing = false
		return queueItem{}, false
	}
	item := c.pending[0]
	c.pending = c.pending[1:]
	c.processing = true
	return item, true
}

// process converts one file. The record is already in converting state; the
// transition happens at queue time. The record may have been removed while
// the item waited in the queue; such items are skipped without failing the
// queue.
func (c *Coordinator) process(item queueItem) {
	rec, err := c.store.Get(item.fileID)
	if err != nil {
		c.log.Debug().Str("file_id", item.fileID).Msg("skipping removed file")
		return
	}

	ctx, cancel := context.WithCancel(c.baseCtx)
	c.setCancel(item.fileID, cancel)
	defer func() {
		c.clearCancel(item.fileID)
		cancel()
	}()

	blob, size, err := c.blobs.Get(ctx, rec.ObjectKey)
	if err != nil {
		c.failConversion(item.fileID, fmt.Sprintf("stored image unavailable: %v", err))
		return
	}
	defer blob.Close()

	var lastPct int
	result, err := c.conv.Convert(ctx, ocr.Request{
		FileName:    rec.Name,
		ContentType: rec.ContentType,
		Data:        blob,
		Size:        size,
		Format:      item.format,
		Language:    item.language,
	}, func(frac float64) {
		pct := int(frac * 100)
		if pct <= lastPct {
			return
		}
		lastPct = pct
		_ = c.store.Update(item.fileID, func(r *model.FileRecord) { r.Progress = float64(pct) })
		c.bus.Publish(event.NewConversionProgressEvent(item.fileID, float64(pct)))
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// A cancelled conversion is not an error; the file goes back
			// to uploaded and may be queued again.
			_ = c.store.Update(item.fileID, func(r *model.FileRecord) {
				r.Status = model.StatusUploaded
				r.Progress = 0
				r.ConversionStartedAt = nil
			})
			c.log.Info().Str("file_id", item.fileID).Msg("conversion cancelled")
			return
		}
		c.failConversion(item.fileID, conversionMessage(err))
		return
	}

	name := result.FileName
	if name == "" {
		name = documentName(rec.Name, item.format)
	}
	downloadKey := "converted/" + item.fileID + "/" + name
	if err := c.blobs.Put(c.baseCtx, downloadKey, bytes.NewReader(result.Content), int64(len(result.Content)), result.MIMEType); err != nil {
		c.failConversion(item.fileID, fmt.Sprintf("store document: %v", err))
		return
	}

	pages := 0
	if item.format == "pdf" {
		if info, err := pdfutil.Inspect(result.Content); err == nil {
			pages = info.Pages
		}
	}

	ended := time.Now().UTC()
	_ = c.store.Update(item.fileID, func(r *model.FileRecord) {
		r.Status = model.StatusConverted
		r.Progress = 100
		r.DownloadKey = downloadKey
		r.DownloadName = name
		r.DownloadType = result.MIMEType
		r.TextLength = result.TextLength
		r.Pages = pages
		r.ConversionEndedAt = &ended
		r.Message = ""
	})
	if rec, err := c.store.Get(item.fileID); err == nil {
		c.bus.Publish(event.NewConversionCompletedEvent(*rec, item.format))
	}
}

func (c *Coordinator) failConversion(fileID, reason string) {
	ended := time.Now().UTC()
	_ = c.store.Update(fileID, func(r *model.FileRecord) {
		r.Status = model.StatusError
		r.Message = reason
		r.ConversionEndedAt = &ended
	})
	if rec, err := c.store.Get(fileID); err == nil {
		c.bus.Publish(event.NewConversionFailedEvent(*rec, reason))
	}
}

// conversionMessage maps backend error categories to user-facing text.
func conversionMessage(err error) string {
	switch {
	case errors.Is(err, ocr.ErrUnreachable):
		return "conversion service unreachable"
	case errors.Is(err, ocr.ErrNoText):
		return "no text detected in image"
	case errors.Is(err, ocr.ErrServer):
		return fmt.Sprintf("conversion failed: %v", err)
	default:
		return fmt.Sprintf("conversion failed: %v", err)
	}
}
