package runloop

import "github.com/quarch/dataloop/internal/msgqueue"

// pngSignatureLen is the 8-byte PNG signature Start consumes; the chunk
// cursor begins past it.
const pngSignatureLen = 8

// imageStage is the image sub-lane's staged callback: header parsing hands
// off to pixel processing, processing hands off to the uploader.
type imageStage int

const (
	stageParseHeaders imageStage = iota
	stageUpload
)

// imageState is the image sub-lane: one progressive decode at a time,
// operating on a buffer borrowed from the file lane.
type imageState struct {
	queue *msgqueue.Queue

	handle ImageDecoder
	data   []byte
	offset int

	isBlocking               bool
	isBlockingOnProcessing   bool
	isFinished               bool
	isFinishedWithProcessing bool
	cb                       imageStage

	posIncrement           int
	processingPosIncrement int

	frameCount           uint64
	processingFrameCount uint64
	finalState           ProcessStatus
}

// stepBudget is the per-tick work bound: max(1, len/divisor).
func stepBudget(length, divisor int) int {
	if divisor < 1 {
		divisor = 1
	}
	if n := length / divisor; n > 0 {
		return n
	}
	return 1
}

// imageIteratePoll routes a queued image command to the file lane: the
// bytes have to be loaded before decoding can start. The command keeps its
// tag so the file lane selects the bridge callback.
func (e *Engine) imageIteratePoll() {
	n := &e.nbio
	img := &n.image
	if img.queue == nil || img.handle != nil {
		return
	}

	msg, ok := img.queue.Pull()
	if !ok {
		return
	}

	n.queue.Clear()
	n.queue.Push(msg, 0, 1)
}

// bridgeWallpaper is the file lane's wallpaper completion: it hands the
// freshly read bytes to a new decoder and parks the file task until the
// image sub-lane is done with the buffer.
func (e *Engine) bridgeWallpaper() {
	n := &e.nbio
	img := &n.image

	// The length reported after the transfer is authoritative.
	data := n.handle.Ptr()
	if len(data) == 0 {
		e.log.Error("wallpaper file is empty",
			"transfer", n.transferID, "path", n.path)
		n.isBlocking = true
		n.isFinished = true
		return
	}

	dec := e.deps.NewDecoder()
	if dec == nil || !dec.Start(data) {
		if dec != nil {
			dec.Free()
		}
		e.log.Error("wallpaper is not a valid image",
			"transfer", n.transferID, "path", n.path)
		n.isBlocking = true
		n.isFinished = true
		return
	}

	img.handle = dec
	img.data = data
	img.offset = pngSignatureLen
	img.cb = stageParseHeaders
	img.posIncrement = stepBudget(len(data), e.cfg.PNGChunksPerTickDivisor)
	img.processingPosIncrement = stepBudget(len(data), e.cfg.PNGProcessPerTickDivisor)
	img.isBlocking = false
	img.isFinished = false
	img.finalState = ProcessNext

	// The decoder borrows the file buffer: the file task parks with its
	// handle held until the upload or abort path releases it.
	n.isBlocking = false
	n.isFinished = true
}

// imageIterateTransfer advances the chunk walk by the per-tick budget,
// moving the cursor by length + type + data + CRC per chunk. Returns -1
// when the decoder cannot advance, which flips the lane to parsing.
func (e *Engine) imageIterateTransfer() int {
	img := &e.nbio.image
	if img.isFinished {
		return 0
	}

	for i := 0; i < img.posIncrement; i++ {
		var rest []byte
		if img.offset < len(img.data) {
			rest = img.data[img.offset:]
		}
		if !img.handle.Iterate(rest) {
			return -1
		}
		img.offset += 4 + 4 + int(img.handle.ChunkSize()) + 4
	}
	img.frameCount++
	return 0
}

// imageIterateTransferParse runs the staged callback at the end of the
// chunk walk.
func (e *Engine) imageIterateTransferParse() {
	img := &e.nbio.image
	if img.handle != nil {
		e.runImageStage()
	}
	e.log.Debug("image transfer complete", "frames", img.frameCount)
}

// imageIterateProcessTransfer advances pixel processing by the per-tick
// budget. Returns -1 on any terminal status, recording it for the parse.
func (e *Engine) imageIterateProcessTransfer() int {
	img := &e.nbio.image

	st := ProcessNext
	for i := 0; i < img.processingPosIncrement; i++ {
		st = img.handle.Process()
		if st != ProcessNext {
			break
		}
	}
	img.processingFrameCount++

	if st == ProcessNext {
		return 0
	}
	img.finalState = st
	return -1
}

// imageIterateProcessTransferParse runs the staged callback (the uploader)
// once processing reaches a terminal state.
func (e *Engine) imageIterateProcessTransferParse() {
	img := &e.nbio.image
	if img.handle != nil {
		e.runImageStage()
	}
	e.log.Debug("image processing complete", "frames", img.processingFrameCount)
}

// imageIterateParseFree releases the decoder and returns the sub-lane to
// idle. Stale queued image commands are flushed with it.
func (e *Engine) imageIterateParseFree() {
	img := &e.nbio.image

	img.handle.Free()
	img.handle = nil
	img.data = nil
	img.offset = 0
	img.frameCount = 0
	img.processingFrameCount = 0
	img.isBlocking = false
	img.isFinished = false
	img.isFinishedWithProcessing = false

	if img.queue != nil {
		img.queue.Clear()
	}
}

func (e *Engine) runImageStage() {
	switch e.nbio.image.cb {
	case stageParseHeaders:
		e.imageParseHeaders()
	case stageUpload:
		e.imageUpload()
	}
}

// imageParseHeaders validates the chunk walk and switches the lane to the
// processing phase. The required sections must all be present.
func (e *Engine) imageParseHeaders() {
	n := &e.nbio
	img := &n.image
	dec := img.handle

	if !dec.HasIHDR() || !dec.HasIDAT() || !dec.HasIEND() {
		e.log.Error("image is missing required sections",
			"transfer", n.transferID, "path", n.path)
		e.imageAbort()
		return
	}

	if st := dec.Process(); st == ProcessError || st == ProcessErrorEnd {
		img.finalState = st
		e.log.Error("image processing failed",
			"transfer", n.transferID, "path", n.path)
		e.imageAbort()
		return
	}

	img.cb = stageUpload
	img.isBlockingOnProcessing = true
	img.isFinishedWithProcessing = false
	img.isFinished = false
}

// imageUpload hands the decoded buffer to the renderer and marks both the
// image task and the parked file task finished.
func (e *Engine) imageUpload() {
	n := &e.nbio
	img := &n.image

	if img.finalState == ProcessError || img.finalState == ProcessErrorEnd {
		e.log.Error("image processing failed",
			"transfer", n.transferID, "path", n.path)
		e.imageAbort()
		return
	}

	pix, w, h := img.handle.Image()
	if e.deps.Renderer != nil {
		e.deps.Renderer.LoadBackground(Image{Pixels: pix, Width: w, Height: h})
	}

	img.isBlockingOnProcessing = false
	img.isFinishedWithProcessing = true
	img.isBlocking = true
	img.isFinished = true
	n.isBlocking = true
	n.isFinished = true
}

// imageAbort drops the decode without invoking the uploader and releases
// the parked file task, so both lanes free on the next tick.
func (e *Engine) imageAbort() {
	n := &e.nbio
	img := &n.image

	img.isBlockingOnProcessing = false
	img.isBlocking = true
	img.isFinished = true
	n.isBlocking = true
	n.isFinished = true
}
