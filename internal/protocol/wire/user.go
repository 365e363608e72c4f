package wire

import "encoding/binary"

// UserInfo is the user tuple carried in UserNameWithInfo parameters and
// held by the user registry: id, icon, flags, display name.
type UserInfo struct {
	ID    uint16
	Icon  uint16
	Flags uint16
	Name  string
}

// Encode serializes the tuple: id, icon, flags, name length, name.
func (u UserInfo) Encode() []byte {
	buf := make([]byte, 8, 8+len(u.Name))
	binary.BigEndian.PutUint16(buf[0:2], u.ID)
	binary.BigEndian.PutUint16(buf[2:4], u.Icon)
	binary.BigEndian.PutUint16(buf[4:6], u.Flags)
	binary.BigEndian.PutUint16(buf[6:8], uint16(len(u.Name)))
	return append(buf, u.Name...)
}

// ParseUserInfo extracts a user tuple.
func ParseUserInfo(data []byte) (UserInfo, error) {
	if len(data) < 8 {
		return UserInfo{}, ErrMessageTooShort
	}
	nameLen := int(binary.BigEndian.Uint16(data[6:8]))
	if len(data)-8 < nameLen {
		return UserInfo{}, ErrBodyTruncated
	}
	return UserInfo{
		ID:    binary.BigEndian.Uint16(data[0:2]),
		Icon:  binary.BigEndian.Uint16(data[2:4]),
		Flags: binary.BigEndian.Uint16(data[4:6]),
		Name:  string(data[8 : 8+nameLen]),
	}, nil
}

// Field wraps the tuple in a UserNameWithInfo parameter.
func (u UserInfo) Field() Field {
	return Field{ID: FieldUserNameWithInfo, Data: u.Encode()}
}

// Away reports the away flag.
func (u UserInfo) Away() bool { return u.Flags&UserFlagAway != 0 }

// Admin reports the admin flag.
func (u UserInfo) Admin() bool { return u.Flags&UserFlagAdmin != 0 }

// RefusesPM reports the refuse-private-messages flag.
func (u UserInfo) RefusesPM() bool { return u.Flags&UserFlagRefusePM != 0 }
