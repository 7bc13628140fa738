// Package webimg fetches remote images over HTTP and caches decoded and
// encoded results across memory and disk, so repeated requests for the same
// resource avoid redundant network and decode work.
//
// The package is built from two cooperating parts:
//   - DownloadTask: a per-request, cancellable network state machine with
//     progressive decoding, authentication handling, and exactly-once
//     terminal delivery.
//   - Cache: a bounded in-memory store layered over a content-addressed,
//     age/size-governed on-disk store. All disk I/O for one cache instance
//     funnels through a single serialized worker, and an age/size janitor
//     sweep keeps the disk tier within policy.
//
// Basic usage:
//
//	cache, err := webimg.New("thumbnails")
//	if err != nil {
//	    return err
//	}
//	defer cache.Close()
//
//	key := webimg.KeyForURL(imageURL)
//	cache.Lookup(key, func(bm *webimg.Bitmap, origin webimg.Origin) {
//	    if bm != nil {
//	        return // served from memory or disk
//	    }
//	    req, _ := http.NewRequest(http.MethodGet, imageURL, nil)
//	    task := webimg.NewDownloadTask(req, nil, webimg.TaskOptions{}, webimg.Callbacks{
//	        OnCompletion: func(bm *webimg.Bitmap, data []byte, err error, final bool) {
//	            if final && err == nil && bm != nil {
//	                cache.Store(bm, data, key, true)
//	            }
//	        },
//	    })
//	    task.Start()
//	})
//
// Deduplicating concurrent requests for the same resource and mapping
// application-level identifiers to cache keys are caller concerns; the
// package assumes one DownloadTask per initiated request.
package webimg
