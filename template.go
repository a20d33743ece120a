// Copyright 2025 The modbusrc Authors. All rights reserved
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package modbusrc

// The two target templates. Placeholders are delimited by '@' on both
// sides and expand to fragments derived from the automaton; an empty
// fragment leaves the line's indentation in place.

const templateMaster = `#pragma once
/**
 * This file was generated to create a state machine for processing
 * uart data used for a modbus RTU.
 */
#include <cstdint>

#include <ulog.h>
#include <asx/modbus_rtu_master.hpp>

namespace @NAMESPACE@ {
    // All callbacks registered
    @PROTOTYPES@

    // All states to consider
    enum class state_t : uint8_t {
        IGNORE = 0,
        ERROR = 1,
        BAD_REQUEST, // The slave indicates an error
        BAD_REQUEST__CRC,
        BAD_REQUEST_CONFIRMED,
        @ENUMS@
    };

    class Datagram {
        using error_t = asx::modbus::error_t;

        ///< Adjusted buffer to only receive the largest amount of data possible
        inline static uint8_t buffer[@BUFSIZE@];
        ///< Number of characters in the buffer
        inline static uint8_t cnt;
        ///< Number of characters to send
        inline static uint8_t frame_size;
        ///< Error code
        inline static error_t error;
        ///< State
        inline static state_t state;
        ///< CRC for the datagram
        inline static asx::modbus::Crc crc{};
        ///< Expected reply address
        inline static uint8_t expected_address;
        ///< Expected reply op code
        inline static uint8_t expected_command;

        static inline auto ntoh(const uint8_t offset) -> uint16_t {
            return (static_cast<uint16_t>(buffer[offset]) << 8) | static_cast<uint16_t>(buffer[offset + 1]);
        }

        static inline auto ntohl(const uint8_t offset) -> uint32_t {
            return
                (static_cast<uint32_t>(buffer[offset]) << 24) |
                (static_cast<uint32_t>(buffer[offset+1]) << 16) |
                (static_cast<uint32_t>(buffer[offset+2]) << 8) |
                static_cast<uint16_t>(buffer[offset+3]);
        }

    public:
        // Status of the datagram
        enum class status_t : uint8_t {
            GOOD_FRAME = 0,
            NOT_FOR_ME = 1,
            BAD_CRC = 2
        };

        static void reset() noexcept {
            cnt=0;
            crc.reset();
            error = error_t::ok;
            state = state_t::DEVICE_ADDRESS;
        }

        static status_t get_status() noexcept {
            if (state == state_t::IGNORE) {
                return status_t::NOT_FOR_ME;
            }

            return crc.check() ? status_t::GOOD_FRAME : status_t::BAD_CRC;
        }

        static void process_char(const uint8_t c) noexcept {
            ULOG_DEBUG0("Processing char: 0x{:2x} at position {}", c, cnt);

            if (state == state_t::IGNORE) {
                return;
            }

            // Compute the CRC on the go
            crc(c);

            // Keep count
            ++cnt;

            switch(state) {
            case state_t::ERROR:
                break;
            @CASES@
            case state_t::BAD_REQUEST:
                state = state_t::BAD_REQUEST__CRC;
                break;
            case state_t::BAD_REQUEST__CRC:
                if ( cnt == 5 ) {
                    state = state_t::BAD_REQUEST_CONFIRMED;
                }
                break;
            default:
                error = error_t::illegal_data_value;
                state = state_t::ERROR;
                break;
            }

            if (state != state_t::ERROR) {
                // Store the frame
                buffer[cnt-1] = c; // Store the data
            }
        }

        template<typename T>
        static void pack(const T& value) noexcept {
            if constexpr ( sizeof(T) == 1 ) {
                buffer[cnt++] = value;
            } else if constexpr ( sizeof(T) == 2 ) {
                buffer[cnt++] = value >> 8;
                buffer[cnt++] = value & 0xff;
            } else if constexpr ( sizeof(T) == 4 ) {
                buffer[cnt++] = value >> 24;
                buffer[cnt++] = value >> 16 & 0xff;
                buffer[cnt++] = value >> 8 & 0xff;
                buffer[cnt++] = value & 0xff;
            }
        }

        static void pack(const asx::modbus::command_t cmd) noexcept {
            buffer[cnt++] = static_cast<uint8_t>(cmd);
        }

        /** Called when a T3.5 has been detected, in a good sequence */
        static error_t process_reply() noexcept {
            auto retval = error_t::ok;

            switch(state) {
            @CALLBACKS@
            case state_t::BAD_REQUEST_CONFIRMED:
                // Make sure the error is compatible
                if ( buffer[2] > 0 && buffer[2] < static_cast<uint8_t>(error_t::unknown_error) ) {
                    retval = static_cast<error_t>(buffer[2]);
                } else {
                    retval = error_t::unknown_error;
                }
                break;
            default:
                retval = error_t::ignore_frame;
                break;
            }
            return retval;
        }

        /** Called when a T3.5 has been detected, in a good sequence */
        static void ready_request() noexcept {
            // Add the CRC
            crc.reset();
            auto _crc = crc.update(std::string_view{(char *)buffer, cnt});
            buffer[cnt++] = _crc & 0xff;
            buffer[cnt++] = _crc >> 8;
        }

        static std::string_view get_buffer() noexcept {
            // Return the buffer ready to send
            return std::string_view{(char *)buffer, cnt};
        }

        static void initiate_transmit(uint8_t slave_addr, asx::modbus::command_t cmd) noexcept {
            cnt = 0;
            expected_address = buffer[cnt++] = slave_addr;
            expected_command = buffer[cnt++] = static_cast<uint8_t>(cmd);
        }
    }; // struct Processor
} // namespace modbus`

const templateSlave = `#pragma once
/**
 * This file was generated to create a state machine for processing
 * uart data used for a modbus RTU. It should be included by
 * the modbus_rtu_slave.cpp file only which will create a full rtu slave device.
 */
#include <cstdint>
#include <ulog.h>
#include <asx/modbus_rtu_slave.hpp>

namespace @NAMESPACE@ {
    // All callbacks registered
    @PROTOTYPES@

    // All states to consider
    enum class state_t : uint8_t {
        IGNORE = 0,
        ERROR = 1,
        @ENUMS@
    };

    // Code 43 / 14 object category
    enum class object_code_t : uint8_t {
        BASIC_DEVICE_IDENTIFICATION = 0x01,
        REGULAR_DEVICE_IDENTIFICATION = 0x02,
        EXTENDED_DEVICE_IDENTIFICATION = 0x03,
        SPECIFIC_DEVICE_IDENTIFICATION = 0x04
    };


    class Datagram {
        using error_t = asx::modbus::error_t;

        @DEVICE_ADDRESS@
        ///< Adjusted buffer to only receive the largest amount of data possible
        inline static uint8_t buffer[@BUFSIZE@];
        ///< Number of characters in the buffer
        inline static uint8_t cnt;
        ///< Number of characters to send
        inline static uint8_t frame_size;
        ///< Error code
        inline static error_t error;
        ///< State
        inline static state_t state;
        ///< CRC for the datagram
        inline static asx::modbus::Crc crc{};

        static inline auto ntoh(const uint8_t offset) -> uint16_t {
            return (static_cast<uint16_t>(buffer[offset]) << 8) | static_cast<uint16_t>(buffer[offset + 1]);
        }

        static inline auto ntohl(const uint8_t offset) -> uint32_t {
            return
                (static_cast<uint32_t>(buffer[offset]) << 24) |
                (static_cast<uint32_t>(buffer[offset+1]) << 16) |
                (static_cast<uint32_t>(buffer[offset+2]) << 8) |
                static_cast<uint16_t>(buffer[offset+3]);
        }

    public:
        // Status of the datagram
        enum class status_t : uint8_t {
            GOOD_FRAME = 0,
            NOT_FOR_ME = 1,
            BAD_CRC = 2
        };

        @set_device_address@
        static void reset() noexcept {
            cnt=0;
            crc.reset();
            error = error_t::ok;
            state = state_t::DEVICE_ADDRESS;
        }

        static status_t get_status() noexcept {
            if (state == state_t::IGNORE) {
                return status_t::NOT_FOR_ME;
            }

            return crc.check() ? status_t::GOOD_FRAME : status_t::BAD_CRC;
        }

        static void process_char(const uint8_t c) noexcept {
            ULOG_DEBUG0("Processing char: 0x{:2x} at position {}", c, cnt);

            if (state == state_t::IGNORE) {
                return;
            }

            crc(c);

            if (state != state_t::ERROR) {
                // Store the frame
                buffer[cnt++] = c; // Store the data
            }

            switch(state) {
            case state_t::ERROR:
                break;
            @CASES@
            default:
                error = error_t::illegal_data_value;
                state = state_t::ERROR;
                break;
            }
        }

        static void reply_error( error_t err ) noexcept {
            buffer[1] |= 0x80;
            buffer[2] = (uint8_t)err;
            cnt = 3;
        }

        template<typename T>
        static void pack(const T& value) noexcept {
            if constexpr ( sizeof(T) == 1 ) {
                buffer[cnt++] = value;
            } else if constexpr ( sizeof(T) == 2 ) {
                buffer[cnt++] = value >> 8;
                buffer[cnt++] = value & 0xff;
            } else if constexpr ( sizeof(T) == 4 ) {
                buffer[cnt++] = value >> 24;
                buffer[cnt++] = value >> 16 & 0xff;
                buffer[cnt++] = value >> 8 & 0xff;
                buffer[cnt++] = value & 0xff;
            }
        }

        static void pack(const char *v) noexcept {
            auto length = strlen(v);
            memcpy(&buffer[cnt], v, length);
            cnt += length;
        }

        static inline void set_size(uint8_t size) {
            cnt = size;
        }

        /** Called when a T3.5 has been detected, in a good sequence */
        static void ready_reply() noexcept {
            frame_size = cnt; // Store the frame size
            cnt = 2; // Points to the function code
            @READY_REPLY_CALLBACK@

            switch(state) {
            case state_t::IGNORE:
                break;
            @INCOMPLETE@
                error = error_t::illegal_data_value;
            case state_t::ERROR:
                buffer[1] |= 0x80; // Mark the error
                buffer[2] = (uint8_t)error; // Add the error code
                cnt = 3;
                break;
            @CALLBACKS@
            default:
                break;
            }

            // If the cnt is 2 - nothing was changed in the buffer - return it as is
            if ( cnt == 2 ) {
                // Framesize includes the previous CRC which still holds valid
                cnt = frame_size;
            } else {
                // Add the CRC
                crc.reset();
                auto _crc = crc.update(std::string_view{(char *)buffer, cnt});
                buffer[cnt++] = _crc & 0xff;
                buffer[cnt++] = _crc >> 8;
            }
        }

        static std::string_view get_buffer() noexcept {
            // Return the buffer ready to send
            return std::string_view{(char *)buffer, cnt};
        }
    }; // struct Processor

    @SLAVE_ID_FUNCTION@

    @SLAVE_READ_ID_REQUEST@

    inline void on_diagnostics() {}
} // namespace @NAMESPACE@`
