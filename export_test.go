package kms

// DestroyWithoutFramebuffer releases the mapping and the handle of bo but leaves its
// framebuffer registered.
func (bo *BufferObject) DestroyWithoutFramebuffer() error {
	if err := bo.releaseMapping(); err != nil {
		return err
	}
	return bo.releaseHandle()
}
