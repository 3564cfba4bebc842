package metrics

// NoopCollector is a no-op implementation of the Collector interface.
// All methods are empty stubs that do nothing.
type NoopCollector struct{}

func (n *NoopCollector) ConnectionOpened()                    {}
func (n *NoopCollector) ConnectionClosed()                    {}
func (n *NoopCollector) AuthAttempt(dialect string, ok bool)  {}
func (n *NoopCollector) CommandProcessed(command string)      {}
func (n *NoopCollector) ClientRegistered()                    {}
func (n *NoopCollector) ClientReaped()                        {}
func (n *NoopCollector) NoticePosted(delivered bool)          {}
func (n *NoopCollector) NoticeRetransmitted()                 {}
func (n *NoopCollector) StickyNoticeStored()                  {}
func (n *NoopCollector) StickyNoticeCleared(count int)        {}
