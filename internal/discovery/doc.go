// Package discovery drives the blog lifecycle: operator enable/disable, refresh of
// enabled blogs, and frontier expansion from post notes.
//
// Error policy:
//   - A remote 404 is a business outcome and produces a NOT_FOUND record.
//   - Any other remote answer, and any transport failure, is logged with the blog
//     name and status code. Nothing is written and batch loops move on to the next blog.
//   - Registry writes and call accounting failures are returned to the caller and
//     stop the batch, because later decisions depend on committed state.
package discovery
