package writepath

// Optimize compacts every partition's chunks: valid rows are packed
// into the lowest-numbered chunks first and any chunk left entirely
// empty is dropped, reclaiming the slots fragmentation from deletes
// leaves behind. It touches both the chunk store (the physical
// buffers being compacted) and the row directory (the (chunk, slot)
// pointers that have to move with the data they describe), which is
// why compaction lives here rather than inside chunkstore alone.
func (w *Writer) Optimize() error {
	partitions, err := w.allPartitionKeys()
	if err != nil {
		return err
	}
	for _, pk := range partitions {
		if err := w.optimizePartition(pk); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) allPartitionKeys() ([]string, error) {
	if len(w.schema.Partitions) == 0 {
		return []string{""}, nil
	}
	return w.store.DistinctPartitionKeys()
}

func (w *Writer) optimizePartition(partitionKey string) error {
	chunks, err := w.store.PartitionChunks(partitionKey)
	if err != nil {
		return err
	}

	// dst walks from the front collecting free slots; src walks from
	// the back donating valid rows. Classic two-pointer compaction,
	// same shape as an in-place slice-filter.
	dst := 0
	src := len(chunks) - 1
	dstSlot := 0

	for dst <= src {
		dstChunk := chunks[dst]
		dstValidity, err := w.store.ReadValidity(dstChunk)
		if err != nil {
			return err
		}
		if dstSlot >= w.store.ChunkSize() {
			dst++
			dstSlot = 0
			continue
		}
		if dstValidity.Test(dstSlot) {
			dstSlot++
			continue
		}
		if dst == src {
			break
		}

		srcChunk := chunks[src]
		srcSlot, ok, err := w.lastValidSlot(srcChunk)
		if err != nil {
			return err
		}
		if !ok {
			src--
			continue
		}

		if err := w.moveRow(srcChunk, srcSlot, dstChunk, dstSlot); err != nil {
			return err
		}
		dstSlot++
	}

	for i := src + 1; i < len(chunks); i++ {
		if err := w.store.DeleteChunk(chunks[i]); err != nil {
			return err
		}
	}
	if dst < len(chunks) && dst == src {
		empty, err := w.chunkIsEmpty(chunks[dst])
		if err != nil {
			return err
		}
		if empty {
			if err := w.store.DeleteChunk(chunks[dst]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Writer) lastValidSlot(chunkID int64) (int, bool, error) {
	v, err := w.store.ReadValidity(chunkID)
	if err != nil {
		return 0, false, err
	}
	for i := w.store.ChunkSize() - 1; i >= 0; i-- {
		if v.Test(i) {
			return i, true, nil
		}
	}
	return 0, false, nil
}

func (w *Writer) chunkIsEmpty(chunkID int64) (bool, error) {
	v, err := w.store.ReadValidity(chunkID)
	if err != nil {
		return false, err
	}
	return v.PopCount(w.store.ChunkSize()) == 0, nil
}

// moveRow relocates the row at (srcChunk, srcSlot) to (dstChunk,
// dstSlot): copy every buffer, repoint the directory entry, then
// clear the source slot.
func (w *Writer) moveRow(srcChunk int64, srcSlot int, dstChunk int64, dstSlot int) error {
	rowids, err := w.store.ReadRowids(srcChunk)
	if err != nil {
		return err
	}
	id := rowids[srcSlot]

	for i := range w.schema.Vectors {
		buf, err := w.store.ReadVectorBuffer(srcChunk, i)
		if err != nil {
			return err
		}
		col := w.schema.Vectors[i]
		stride := col.Kind.ByteLen(col.Dim)
		raw := make([]byte, stride)
		copy(raw, buf[srcSlot*stride:(srcSlot+1)*stride])
		if err := w.store.WriteVectorSlot(dstChunk, i, dstSlot, raw); err != nil {
			return err
		}
		if err := w.store.ZeroVectorSlot(srcChunk, i, srcSlot); err != nil {
			return err
		}
	}

	for i, mc := range w.schema.Metadata {
		srcBuf, err := w.store.ReadMetadataBuffer(srcChunk, i)
		if err != nil {
			return err
		}
		v, err := readMetaSlot(mc.Type, srcBuf, srcSlot, w.store.TextOverflow(i), srcChunk)
		if err != nil {
			return err
		}
		dstBuf, err := w.store.ReadMetadataBuffer(dstChunk, i)
		if err != nil {
			return err
		}
		if err := writeMetaSlot(mc.Type, dstBuf, dstSlot, v, w.store.TextOverflow(i), dstChunk); err != nil {
			return err
		}
		if err := w.store.WriteMetadataBuffer(dstChunk, i, dstBuf); err != nil {
			return err
		}
		srcBuf2, err := w.store.ReadMetadataBuffer(srcChunk, i)
		if err != nil {
			return err
		}
		if err := clearMetaSlot(mc.Type, srcBuf2, srcSlot, w.store.TextOverflow(i), srcChunk); err != nil {
			return err
		}
		if err := w.store.WriteMetadataBuffer(srcChunk, i, srcBuf2); err != nil {
			return err
		}
	}

	if err := w.store.WriteRowid(dstChunk, dstSlot, id); err != nil {
		return err
	}
	if err := w.store.SetValid(dstChunk, dstSlot); err != nil {
		return err
	}
	if err := w.store.ClearValid(srcChunk, srcSlot); err != nil {
		return err
	}
	if err := w.store.ClearRowid(srcChunk, srcSlot); err != nil {
		return err
	}

	return w.repointDirectory(id, dstChunk, dstSlot)
}

func (w *Writer) repointDirectory(id int64, chunkID int64, slot int) error {
	return w.dir.Relocate(id, chunkID, slot)
}
