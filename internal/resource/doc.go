// Package resource bounds the memory, background concurrency and IO
// bandwidth used by tier migrations and archive reads.
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes:     256 << 20,
//	    MaxBackgroundWorkers: 2,
//	    IOBytesPerSec:        64 << 20,
//	})
//
//	if err := rc.AcquireBackground(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseBackground()
//
//	w := resource.NewRateLimitedWriter(ctx, blob, rc)
//
// Memory reservations never block: TryAcquireMemory fails fast and callers
// decide whether to skip the work. Background slots and IO tokens wait on
// the context. All methods accept a nil *Controller and then impose no limit.
package resource
