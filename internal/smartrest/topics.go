package smartrest

// Topic names for the static SmartREST templates.
const (
	// TopicUpstream carries all outbound static-template messages.
	TopicUpstream = "s/us"

	// TopicErrors carries error responses from the endpoint.
	TopicErrors = "s/e"

	// TopicDownstream carries operations for static templates.
	TopicDownstream = "s/ds"

	// TopicTokenRefresh asks the endpoint for a new device token
	// (mutual TLS only).
	TopicTokenRefresh = "s/uat"

	// topicCustomDownstreamPrefix prefixes custom-template downstream topics.
	topicCustomDownstreamPrefix = "s/dc/"
)

// Topics provides builders for SmartREST topics.
//
//	topics := smartrest.Topics{}
//	topics.CustomDownstream("c8y_Template") // "s/dc/c8y_Template"
type Topics struct{}

// CustomDownstream returns the downstream topic for a custom template
// collection (X-ID).
func (Topics) CustomDownstream(template string) string {
	return topicCustomDownstreamPrefix + template
}

// Subscriptions returns every inbound topic the agent subscribes to after
// registration, in subscription order: s/e, s/ds, then one topic per template.
func (t Topics) Subscriptions(templates []string) []string {
	topics := make([]string, 0, 2+len(templates))
	topics = append(topics, TopicErrors, TopicDownstream)
	for _, template := range templates {
		topics = append(topics, t.CustomDownstream(template))
	}
	return topics
}
