package serializer

// IRPCSerializer is the interface for all message serializers.
// Implementations encode and decode the common.Request and common.Response
// message shapes.
type IRPCSerializer interface {
	// Serialize serializes a message into a byte array
	// It returns the serialized byte array and an error if any
	Serialize(msg any) ([]byte, error)
	// Deserialize deserializes a byte array into a message
	// It takes a byte array and a pointer to a message as parameters
	// It returns an error if any
	Deserialize(b []byte, msg any) error
}
