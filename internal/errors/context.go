package errors

const (
	contextKeyOperation = "operation"
	contextKeyInterface = "interface"
	contextKeyDevice    = "device"
	contextKeyDirection = "direction"
	contextKeyProfile   = "profile"
	contextKeyCommand   = "command"
	contextKeyValue     = "value"
)

// ErrorContext captures structured metadata for categorized errors.
type ErrorContext struct {
	Operation string
	Interface string
	Device    string
	Direction string
	Profile   string
	Command   string
	Value     string
	Extra     map[string]any
}

// Merge returns a new ErrorContext combining the receiver with the provided context.
// Non-empty fields from the other context override existing values. Extra maps are merged.
func (ec ErrorContext) Merge(other ErrorContext) ErrorContext {
	result := ec

	if other.Operation != "" {
		result.Operation = other.Operation
	}
	if other.Interface != "" {
		result.Interface = other.Interface
	}
	if other.Device != "" {
		result.Device = other.Device
	}
	if other.Direction != "" {
		result.Direction = other.Direction
	}
	if other.Profile != "" {
		result.Profile = other.Profile
	}
	if other.Command != "" {
		result.Command = other.Command
	}
	if other.Value != "" {
		result.Value = other.Value
	}

	if len(other.Extra) > 0 {
		merged := make(map[string]any, len(result.Extra)+len(other.Extra))
		for k, v := range result.Extra {
			merged[k] = v
		}
		for k, v := range other.Extra {
			merged[k] = v
		}
		result.Extra = merged
	}

	return result
}

// ToMap converts the context into a map for logging compatibility.
func (ec ErrorContext) ToMap() map[string]any {
	result := make(map[string]any)

	set := func(key, value string) {
		if value != "" {
			result[key] = value
		}
	}
	set(contextKeyOperation, ec.Operation)
	set(contextKeyInterface, ec.Interface)
	set(contextKeyDevice, ec.Device)
	set(contextKeyDirection, ec.Direction)
	set(contextKeyProfile, ec.Profile)
	set(contextKeyCommand, ec.Command)
	set(contextKeyValue, ec.Value)

	for k, v := range ec.Extra {
		result[k] = v
	}

	return result
}
